// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

// indexPage is the single-file demo UI. It talks to the JSON API with
// fetch(); no assets, no build step.
const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>grant-engine</title>
<style>
  body { font-family: Georgia, serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
  h1 { font-size: 1.4rem; }
  h2 { font-size: 1.1rem; margin-top: 2rem; }
  textarea, input[type=text] { width: 100%; font: inherit; padding: 0.4rem; box-sizing: border-box; }
  button { font: inherit; padding: 0.4rem 1rem; margin-top: 0.5rem; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; font-size: 0.9rem; }
  td, th { border: 1px solid #ccc; padding: 0.4rem; text-align: left; vertical-align: top; }
  pre { white-space: pre-wrap; background: #f7f7f2; padding: 1rem; }
  .muted { color: #777; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>grant-engine</h1>
<p class="muted">Find funded Specific Aims exemplars and draft a new section from them.</p>

<h2>Search the corpus</h2>
<input type="text" id="query" placeholder="e.g. gut microbiome and chemotherapy response">
<button onclick="doRetrieve()">Retrieve</button>
<div id="results"></div>

<h2>Draft a Specific Aims section</h2>
<input type="text" id="topic" placeholder="Research topic">
<input type="text" id="hypothesis" placeholder="Central hypothesis (optional)">
<textarea id="aims" rows="3" placeholder="Planned aims, one per line (optional)"></textarea>
<button onclick="doDraft()">Draft</button>
<div id="draft"></div>

<script>
async function doRetrieve() {
  const query = document.getElementById('query').value;
  const el = document.getElementById('results');
  el.textContent = 'Searching...';
  const resp = await fetch('/api/retrieve', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({query: query}),
  });
  const data = await resp.json();
  if (!resp.ok) { el.textContent = data.error; return; }
  if (data.count === 0) { el.textContent = 'No results.'; return; }
  let html = '<table><tr><th>Grant</th><th>Title</th><th>Score</th><th>Sim</th><th>Excerpt</th></tr>';
  for (const r of data.results) {
    html += '<tr><td>' + esc(r.grant_id) + '</td><td>' + esc(r.title) +
      '</td><td>' + (r.impact_score ?? '') + '</td><td>' + r.similarity.toFixed(3) +
      '</td><td>' + esc(r.excerpt) + '</td></tr>';
  }
  el.innerHTML = html + '</table>';
}

async function doDraft() {
  const el = document.getElementById('draft');
  el.textContent = 'Drafting (this can take a minute)...';
  const aims = document.getElementById('aims').value.split('\n').map(s => s.trim()).filter(Boolean);
  const resp = await fetch('/api/draft', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({
      topic: document.getElementById('topic').value,
      hypothesis: document.getElementById('hypothesis').value,
      aims: aims,
    }),
  });
  const data = await resp.json();
  if (!resp.ok) { el.textContent = data.error; return; }
  el.innerHTML = '<p class="muted">Saved to ' + esc(data.path) + '</p><pre>' + esc(data.text) + '</pre>';
}

function esc(s) {
  return String(s ?? '').replace(/[&<>"]/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;'}[c]));
}
</script>
</body>
</html>
`
