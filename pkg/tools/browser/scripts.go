package browser

// Page scripts run through Page.Evaluate and Page.EvaluateOn. Scripts used
// with EvaluateOn receive the element as their first parameter.

const scrollWindowScript = `(d) => { window.scrollBy(d.x, d.y); }`

const scrollElementScript = `(el, d) => { el.scrollBy(d.x, d.y); }`

const elementInfoScript = `(el, opts) => {
  const rect = el.getBoundingClientRect();
  const info = {
    tagName: el.tagName.toLowerCase(),
    id: el.id || '',
    className: typeof el.className === 'string' ? el.className : '',
    text: (el.innerText || el.textContent || '').trim().slice(0, 500),
    outerHTML: el.outerHTML.slice(0, 4000),
    boundingBox: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
    visible: rect.width > 0 && rect.height > 0 && getComputedStyle(el).visibility !== 'hidden',
  };
  if (opts.includeStyles) {
    const cs = getComputedStyle(el);
    const styles = {};
    for (const name of opts.styleProperties) {
      styles[name] = cs.getPropertyValue(name);
    }
    info.styles = styles;
  }
  return info;
}`

// styleProperties are the computed styles reported by capture_element_info.
var styleProperties = []string{
	"display", "position", "color", "background-color", "font-family",
	"font-size", "font-weight", "margin", "padding", "border", "width",
	"height", "opacity", "visibility", "z-index",
}

const highlightScript = `(opts) => {
  const targets = Array.from(document.querySelectorAll(opts.selector));
  const saved = targets.map((t) => ({ t, css: t.style.cssText }));
  for (const t of targets) {
    if (opts.style === 'background') {
      t.style.backgroundColor = opts.color;
    } else if (opts.style === 'outline') {
      t.style.outline = '3px solid ' + opts.color;
    } else {
      t.style.border = '3px solid ' + opts.color;
    }
  }
  setTimeout(() => { for (const s of saved) { s.t.style.cssText = s.css; } }, opts.duration);
  return targets.length;
}`

const visibleScript = `(el) => {
  const rect = el.getBoundingClientRect();
  const cs = getComputedStyle(el);
  return rect.width > 0 && rect.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none';
}`

const textScript = `(el) => (el.innerText || el.textContent || '').trim()`

const valueScript = `(el) => ('value' in el ? String(el.value) : '')`

const submitScript = `(form) => {
  if (typeof form.requestSubmit === 'function') { form.requestSubmit(); } else { form.submit(); }
}`

const reportValidityScript = `(form) => (typeof form.reportValidity === 'function' ? form.reportValidity() : true)`

var performanceScripts = map[string]string{
	"navigation": `() => {
  const n = performance.getEntriesByType('navigation')[0];
  if (!n) { return null; }
  return {
    domContentLoaded: n.domContentLoadedEventEnd - n.startTime,
    load: n.loadEventEnd - n.startTime,
    responseEnd: n.responseEnd - n.startTime,
    transferSize: n.transferSize,
  };
}`,
	"paint": `() => {
  const out = {};
  for (const p of performance.getEntriesByType('paint')) { out[p.name] = p.startTime; }
  return out;
}`,
	"memory": `() => {
  const m = performance.memory;
  if (!m) { return null; }
  return { usedJSHeapSize: m.usedJSHeapSize, totalJSHeapSize: m.totalJSHeapSize, jsHeapSizeLimit: m.jsHeapSizeLimit };
}`,
	"fps": `() => new Promise((resolve) => {
  let frames = 0;
  const start = performance.now();
  const tick = (now) => {
    frames++;
    if (now - start >= 1000) { resolve({ fps: Math.round(frames * 1000 / (now - start)) }); return; }
    requestAnimationFrame(tick);
  };
  requestAnimationFrame(tick);
})`,
}
