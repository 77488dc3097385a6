package api

// dashboardHTML is the self-contained monitoring dashboard served at
// /monitoring/dashboard. It polls the JSON endpoints in this package;
// no external assets so it works inside locked-down networks.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>RelayPoint Router</title>
<style>
  :root { --ok:#2e7d32; --warn:#f9a825; --bad:#c62828; --ink:#1f2430; --mut:#6b7280; }
  * { box-sizing: border-box; }
  body { margin:0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background:#f3f4f6; color:var(--ink); }
  header { background:#111827; color:#fff; padding:16px 24px; display:flex; align-items:center; gap:16px; }
  header h1 { font-size:18px; margin:0; font-weight:600; }
  #status-dot { width:10px; height:10px; border-radius:50%; background:var(--mut); }
  #status-text { font-size:13px; }
  #uptime { font-size:12px; color:#9ca3af; margin-left:auto; }
  main { max-width:1100px; margin:24px auto; padding:0 16px; }
  .cards { display:grid; grid-template-columns:repeat(auto-fit, minmax(160px,1fr)); gap:12px; margin-bottom:24px; }
  .card { background:#fff; border-radius:8px; padding:14px 16px; box-shadow:0 1px 2px rgba(0,0,0,.08); }
  .card .label { font-size:12px; color:var(--mut); }
  .card .value { font-size:22px; font-weight:600; margin-top:4px; }
  section { background:#fff; border-radius:8px; box-shadow:0 1px 2px rgba(0,0,0,.08); margin-bottom:24px; }
  section h2 { font-size:14px; margin:0; padding:12px 16px; border-bottom:1px solid #e5e7eb; }
  table { width:100%; border-collapse:collapse; font-size:13px; }
  th, td { text-align:left; padding:8px 16px; border-bottom:1px solid #f0f1f3; }
  th { color:var(--mut); font-weight:500; font-size:12px; }
  tr:last-child td { border-bottom:none; }
  .pill { display:inline-block; padding:2px 8px; border-radius:10px; font-size:11px; color:#fff; }
  .pill.ok { background:var(--ok); } .pill.warn { background:var(--warn); } .pill.bad { background:var(--bad); }
  .empty { padding:16px; color:var(--mut); font-size:13px; }
  button { border:0; background:#374151; color:#fff; border-radius:6px; padding:4px 10px; font-size:12px; cursor:pointer; }
  button:hover { background:#1f2937; }
</style>
</head>
<body>
<header>
  <div id="status-dot"></div>
  <h1>RelayPoint Router</h1>
  <span id="status-text">loading…</span>
  <span id="uptime"></span>
</header>
<main>
  <div class="cards">
    <div class="card"><div class="label">Processed</div><div class="value" id="c-processed">–</div></div>
    <div class="card"><div class="label">Success Rate</div><div class="value" id="c-rate">–</div></div>
    <div class="card"><div class="label">Queue Depth</div><div class="value" id="c-depth">–</div></div>
    <div class="card"><div class="label">Throughput /s</div><div class="value" id="c-tput">–</div></div>
    <div class="card"><div class="label">Active Workers</div><div class="value" id="c-workers">–</div></div>
    <div class="card"><div class="label">Open Breakers</div><div class="value" id="c-breakers">–</div></div>
    <div class="card"><div class="label">Warnings</div><div class="value" id="c-warnings">–</div></div>
  </div>

  <section>
    <h2>Process Pools</h2>
    <table id="pools"><thead><tr>
      <th>Pool</th><th>Workers</th><th>Queued</th><th>Processed</th><th>Failed</th><th>Rate Limited</th><th>Success</th><th>Avg ms</th>
    </tr></thead><tbody></tbody></table>
    <div class="empty" id="pools-empty" hidden>No active pools</div>
  </section>

  <section>
    <h2>Queues</h2>
    <table id="queues"><thead><tr>
      <th>Queue</th><th>Pending</th><th>In Flight</th><th>Consumed</th><th>Failed</th><th>Throughput /s</th>
    </tr></thead><tbody></tbody></table>
    <div class="empty" id="queues-empty" hidden>No queue statistics</div>
  </section>

  <section>
    <h2>Circuit Breakers</h2>
    <table id="breakers"><thead><tr>
      <th>Origin</th><th>State</th><th>Requests</th><th>Failures</th><th></th>
    </tr></thead><tbody></tbody></table>
    <div class="empty" id="breakers-empty" hidden>No circuit breakers recorded</div>
  </section>

  <section>
    <h2>Unacknowledged Warnings</h2>
    <table id="warnings"><thead><tr>
      <th>Severity</th><th>Kind</th><th>Message</th><th>Source</th><th></th>
    </tr></thead><tbody></tbody></table>
    <div class="empty" id="warnings-empty" hidden>No unacknowledged warnings</div>
  </section>
</main>

<script>
const fmt = n => n == null ? "–" : n.toLocaleString();
const pct = n => n == null ? "–" : (n * 100).toFixed(1) + "%";

function pill(state) {
  const cls = state === "closed" || state === "HEALTHY" ? "ok"
    : state === "half-open" || state === "DEGRADED" ? "warn" : "bad";
  return '<span class="pill ' + cls + '">' + state + "</span>";
}

function fill(tableId, rows, cells) {
  const body = document.querySelector("#" + tableId + " tbody");
  const empty = document.getElementById(tableId + "-empty");
  body.innerHTML = rows.map(r => "<tr>" + cells(r).map(c => "<td>" + c + "</td>").join("") + "</tr>").join("");
  empty.hidden = rows.length > 0;
}

async function getJSON(path) {
  const resp = await fetch(path);
  if (!resp.ok) throw new Error(path + " -> " + resp.status);
  return resp.json();
}

async function refresh() {
  try {
    const h = await getJSON("/monitoring/health");
    const dot = document.getElementById("status-dot");
    dot.style.background = h.status === "HEALTHY" ? "var(--ok)" : h.status === "DEGRADED" ? "var(--warn)" : "var(--bad)";
    document.getElementById("status-text").textContent = h.status + " · " + h.brokerType + (h.brokerConnected ? "" : " (disconnected)");
    document.getElementById("uptime").textContent = "up since " + new Date(h.upSince).toLocaleString();
    document.getElementById("c-processed").textContent = fmt(h.totalMessagesProcessed);
    document.getElementById("c-rate").textContent = pct(h.overallSuccessRate);
    document.getElementById("c-depth").textContent = fmt(h.currentQueueDepth);
    document.getElementById("c-tput").textContent = (h.throughput ?? 0).toFixed(2);
    document.getElementById("c-workers").textContent = fmt(h.totalActiveWorkers);
    document.getElementById("c-breakers").textContent = fmt(h.circuitBreakersOpen);
    document.getElementById("c-warnings").textContent = fmt(h.unacknowledgedWarnings);
  } catch (e) {
    document.getElementById("status-text").textContent = "unreachable";
    document.getElementById("status-dot").style.background = "var(--bad)";
  }

  try {
    const pools = Object.values(await getJSON("/monitoring/pool-stats"));
    fill("pools", pools, p => [
      p.poolCode, p.activeWorkers + "/" + p.maxConcurrency, p.queueSize,
      fmt(p.totalProcessed), fmt(p.totalFailed), fmt(p.totalRateLimited),
      pct(p.successRate), (p.averageProcessingTimeMs ?? 0).toFixed(0)
    ]);
  } catch (e) { /* endpoint not wired yet */ }

  try {
    const queues = Object.values(await getJSON("/monitoring/queue-stats"));
    fill("queues", queues, q => [
      q.name, fmt(q.pendingMessages), fmt(q.messagesNotVisible),
      fmt(q.totalConsumed), fmt(q.totalFailed), (q.throughput ?? 0).toFixed(2)
    ]);
  } catch (e) { /* endpoint not wired yet */ }

  try {
    const breakers = Object.values(await getJSON("/monitoring/circuit-breakers"));
    fill("breakers", breakers, b => [
      b.name, pill(b.state), fmt(b.requests), fmt(b.failedCalls),
      '<button onclick="resetBreaker(\'' + encodeURIComponent(b.name) + '\')">reset</button>'
    ]);
  } catch (e) { /* endpoint not wired yet */ }

  try {
    const warnings = await getJSON("/monitoring/warnings?unacknowledged=true");
    fill("warnings", warnings, w => [
      pill(w.severity === "INFO" ? "HEALTHY" : w.severity === "WARN" ? "DEGRADED" : w.severity),
      w.kind, w.message, w.source,
      '<button onclick="ackWarning(\'' + w.id + '\')">ack</button>'
    ]);
  } catch (e) { /* endpoint not wired yet */ }
}

async function resetBreaker(origin) {
  await fetch("/monitoring/circuit-breakers/reset?origin=" + origin, { method: "POST" });
  refresh();
}

async function ackWarning(id) {
  await fetch("/monitoring/warnings/" + id + "/acknowledge", { method: "POST" });
  refresh();
}

refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
