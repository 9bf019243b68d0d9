package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Proptor</title>
    <meta name="description" content="Deal risk radar for real-estate agents">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>&#9632;</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --text-tertiary: #52525b;
            --accent: #3b82f6;
            --green: #22c55e;
            --amber: #f59e0b;
            --red: #ef4444;
        }

        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            -webkit-font-smoothing: antialiased;
        }

        .mono { font-family: 'JetBrains Mono', monospace; }

        .container { max-width: 1100px; margin: 0 auto; padding: 0 24px; }

        header {
            border-bottom: 1px solid var(--border);
            padding: 16px 0;
            position: sticky;
            top: 0;
            background: var(--bg);
            z-index: 100;
        }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { font-weight: 600; font-size: 16px; }
        .logo span { color: var(--accent); }

        .key-row { display: flex; gap: 8px; }
        .key-row input {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 6px;
            color: var(--text);
            padding: 6px 10px;
            width: 280px;
            font-family: 'JetBrains Mono', monospace;
            font-size: 12px;
        }
        button {
            background: var(--accent);
            border: none;
            border-radius: 6px;
            color: white;
            padding: 6px 14px;
            font-weight: 500;
            cursor: pointer;
            font-size: 13px;
        }
        button:disabled { opacity: 0.5; cursor: default; }
        button.secondary { background: var(--bg-subtle); border: 1px solid var(--border); }

        main { padding: 32px 0; }

        .cards { display: grid; grid-template-columns: repeat(4, 1fr); gap: 16px; margin-bottom: 32px; }
        .card {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 16px;
        }
        .card .label { color: var(--text-secondary); font-size: 12px; text-transform: uppercase; letter-spacing: 0.05em; }
        .card .value { font-size: 28px; font-weight: 600; margin-top: 4px; }
        .card .value.red { color: var(--red); }
        .card .value.amber { color: var(--amber); }

        h2 { font-size: 15px; font-weight: 600; margin-bottom: 12px; }
        section { margin-bottom: 32px; }

        table { width: 100%; border-collapse: collapse; }
        th {
            text-align: left;
            color: var(--text-tertiary);
            font-size: 11px;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            padding: 8px 12px;
            border-bottom: 1px solid var(--border);
        }
        td { padding: 10px 12px; border-bottom: 1px solid var(--border); }

        .score { font-weight: 600; }
        .score.high { color: var(--red); }
        .score.warn { color: var(--amber); }
        .score.ok { color: var(--green); }

        .badge {
            display: inline-block;
            padding: 2px 8px;
            border-radius: 999px;
            font-size: 11px;
            font-weight: 500;
        }
        .badge.high_risk { background: rgba(239, 68, 68, 0.12); color: var(--red); }
        .badge.stage_stagnation { background: rgba(245, 158, 11, 0.12); color: var(--amber); }

        .alert-row { display: flex; gap: 12px; padding: 10px 0; border-bottom: 1px solid var(--border); align-items: baseline; }
        .alert-row .msg { flex: 1; }
        .alert-row time { color: var(--text-tertiary); font-size: 12px; white-space: nowrap; }

        #runStatus { color: var(--text-secondary); font-size: 13px; margin-left: 12px; }
        .empty { color: var(--text-tertiary); padding: 24px 0; text-align: center; }
    </style>
</head>
<body>
    <header>
        <div class="container header-inner">
            <div class="logo">prop<span>tor</span></div>
            <div class="key-row">
                <input id="apiKey" type="password" placeholder="API key (pk_...)">
                <button id="connect">Connect</button>
            </div>
        </div>
    </header>

    <main class="container">
        <div class="cards">
            <div class="card"><div class="label">Contacts scored</div><div class="value" id="cContacts">&ndash;</div></div>
            <div class="card"><div class="label">Average risk</div><div class="value" id="cAvg">&ndash;</div></div>
            <div class="card"><div class="label">At risk</div><div class="value amber" id="cAtRisk">&ndash;</div></div>
            <div class="card"><div class="label">Unresolved alerts</div><div class="value red" id="cAlerts">&ndash;</div></div>
        </div>

        <section>
            <h2>Risk analysis
                <button id="run" class="secondary" style="margin-left: 12px">Run now</button>
                <span id="runStatus"></span>
            </h2>
            <table>
                <thead><tr><th>Contact</th><th>Stage</th><th>Score</th><th>Last contact</th><th>Top factor</th></tr></thead>
                <tbody id="metrics"><tr><td colspan="5" class="empty">Connect with an API key to load data</td></tr></tbody>
            </table>
        </section>

        <section>
            <h2>Open alerts</h2>
            <div id="alerts"><div class="empty">No alerts</div></div>
        </section>
    </main>

    <script>
        let apiKey = '';
        let ws = null;

        const $ = (id) => document.getElementById(id);

        async function api(path, opts = {}) {
            const res = await fetch('/v1' + path, {
                ...opts,
                headers: { 'Authorization': 'Bearer ' + apiKey, 'Content-Type': 'application/json', ...(opts.headers || {}) },
            });
            if (!res.ok) throw new Error('HTTP ' + res.status);
            return res.json();
        }

        function scoreClass(s) { return s >= 80 ? 'high' : s >= 70 ? 'warn' : 'ok'; }

        async function refresh() {
            const [summaryRes, metrics, alerts] = await Promise.all([
                api('/risk/summary'), api('/risk/metrics'), api('/risk/alerts'),
            ]);
            const summary = summaryRes.summary;

            $('cContacts').textContent = summary.contactCount;
            $('cAvg').textContent = summary.averageScore.toFixed(1);
            $('cAtRisk').textContent = summary.atRiskCount;
            $('cAlerts').textContent = summary.unresolvedAlerts;

            const rows = (metrics.metrics || []).map(m =>
                '<tr><td>' + (m.contactName || m.contactId) + '</td>' +
                '<td>' + (m.contactStage || '') + '</td>' +
                '<td class="score ' + scoreClass(m.riskScore) + '">' + m.riskScore + '</td>' +
                '<td>' + m.lastContactDays + 'd ago</td>' +
                '<td>' + ((m.riskFactors || [])[0] || '') + '</td></tr>'
            );
            $('metrics').innerHTML = rows.length ? rows.join('') : '<tr><td colspan="5" class="empty">No risk metrics yet. Run an analysis.</td></tr>';

            const feed = (alerts.alerts || []).map(a =>
                '<div class="alert-row">' +
                '<span class="badge ' + a.alertType + '">' + a.alertType.replace('_', ' ') + '</span>' +
                '<span class="msg">' + a.alertMessage + '</span>' +
                '<time>' + new Date(a.createdAt).toLocaleString() + '</time></div>'
            );
            $('alerts').innerHTML = feed.length ? feed.join('') : '<div class="empty">No alerts</div>';
        }

        function openStream() {
            if (ws) ws.close();
            const proto = location.protocol === 'https:' ? 'wss' : 'ws';
            ws = new WebSocket(proto + '://' + location.host + '/ws?apiKey=' + encodeURIComponent(apiKey));
            ws.onmessage = () => refresh().catch(() => {});
        }

        $('connect').onclick = async () => {
            apiKey = $('apiKey').value.trim();
            if (!apiKey) return;
            try {
                await refresh();
                openStream();
                $('connect').textContent = 'Connected';
            } catch (e) {
                alert('Could not load data: ' + e.message);
            }
        };

        $('run').onclick = async () => {
            if (!apiKey) return;
            $('run').disabled = true;
            $('runStatus').textContent = 'Running...';
            try {
                const result = await api('/risk/run', { method: 'POST' });
                $('runStatus').textContent = result.run.successCount + ' scored, ' + result.run.alertsCreated + ' alerts';
                await refresh();
            } catch (e) {
                $('runStatus').textContent = 'Run failed: ' + e.message;
            } finally {
                $('run').disabled = false;
            }
        };
    </script>
</body>
</html>`

// dashboardHandler serves the browser dashboard
func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
