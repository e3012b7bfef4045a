package main

/*
WHAT'S GOING ON HERE?

This file renders the visualizations as self-contained HTML pages. The same
renderers back the CLI (-output=page.html) and the HTTP server.

KEY CONCEPTS:
- Page models: plain structs computed up front, so templates stay dumb
- html/template: the user's text ends up in the page, so it must be escaped
- No external assets: styles are inlined and the optimization chart is an SVG
  whose points are computed in Go

PAGES:
1. Directory: links to every visualization
2. Perplexity: gauges, highlighted cursor character, per-model probability and
   surprisal at the cursor, top-5 predictions of each model
3. Recommendation optimization: sliders for target and initial prediction, and
   a line chart of prediction / target / error over the iterations

WHY HTML?
- Works everywhere (just open in browser)
- Self-contained (no server needed for the CLI output)
- Easy to share a particular text or run as a link or file
*/

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Page models
// ---------------------------------------------------------------------------

// DirectoryPage lists the available visualizations.
type DirectoryPage struct {
	BasePath string
	Apps     []App
}

// NewDirectoryPage builds the directory page model.
func NewDirectoryPage(basePath string) DirectoryPage {
	return DirectoryPage{BasePath: basePath, Apps: Apps}
}

// DisplayChar is one character of the highlighted text strip.
type DisplayChar struct {
	Index   int
	Text    string
	Current bool
	Past    bool
}

// PerplexityPage is everything the perplexity page shows for one text and
// cursor position.
type PerplexityPage struct {
	BasePath string
	Text     string
	Result   PerplexityResult
	Chars    []DisplayChar

	Cursor     int
	HasCurrent bool
	Current    CharScore
	CurrentRaw string
	Context    string
	ContextKey string
	CanPrev    bool
	CanNext    bool

	UnigramFill float64
	ContextFill float64
	UnigramTop  []Prediction
	ContextTop  []Prediction
}

// NewPerplexityPage builds the page model for analysis a with the cursor at
// cursor (clamped into the text) and the top k predictions per model.
func NewPerplexityPage(basePath string, a *Analysis, cursor, k int, e *PerplexityEvaluator) PerplexityPage {
	n := a.Len()
	cursor = ClampCursor(cursor, n)
	display := a.DisplayChars()

	page := PerplexityPage{
		BasePath:   basePath,
		Text:       a.Text,
		Result:     a.Result,
		Cursor:     cursor,
		CanPrev:    MoveCursor(cursor, -1, n) != cursor,
		CanNext:    MoveCursor(cursor, 1, n) != cursor,
		UnigramTop: e.TopUnigram(k),
	}
	if n > 0 {
		page.UnigramFill = GaugeFill(a.Result.Unigram, GaugeMin, GaugeMax)
		page.ContextFill = GaugeFill(a.Result.Context, GaugeMin, GaugeMax)
	}

	page.Chars = make([]DisplayChar, len(display))
	for i, r := range display {
		page.Chars[i] = DisplayChar{
			Index:   i,
			Text:    string(r),
			Current: i == cursor,
			Past:    i < cursor,
		}
	}

	if cur, ok := a.At(cursor); ok {
		page.HasCurrent = true
		page.Current = cur
		page.CurrentRaw = string(display[cursor])
		page.Context = a.ContextAt(cursor)
		page.ContextKey = cur.ContextKey
		page.ContextTop = e.TopPredictions(page.Context, k)
	}
	return page
}

// OptimizationPage shows the form and, once run, the trajectory chart.
type OptimizationPage struct {
	BasePath     string
	Target       float64
	Initial      float64
	Iterations   int
	LearningRate float64
	Ran          bool
	Trajectory   Trajectory
	Chart        LineChart
}

// NewOptimizationPage builds the page model. A nil trajectory renders the
// form only.
func NewOptimizationPage(basePath string, target, initial float64, iterations int, lr float64, traj *Trajectory) OptimizationPage {
	page := OptimizationPage{
		BasePath:     basePath,
		Target:       target,
		Initial:      initial,
		Iterations:   iterations,
		LearningRate: lr,
	}
	if traj != nil && traj.Len() > 0 {
		page.Ran = true
		page.Trajectory = *traj
		page.Chart = NewTrajectoryChart(*traj)
	}
	return page
}

// ---------------------------------------------------------------------------
// SVG line chart
// ---------------------------------------------------------------------------

// Chart geometry, in SVG user units.
const (
	chartWidth   = 500
	chartHeight  = 300
	chartPadding = 40
	chartYMax    = 5.0
)

// ChartSeries is one polyline of a LineChart.
type ChartSeries struct {
	Name   string
	Color  string
	Points string
}

// ChartTick is an axis label at a pixel offset.
type ChartTick struct {
	Pos   float64
	Label string
}

// LineChart is a pre-computed SVG chart.
type LineChart struct {
	Width, Height int
	Left, Right   float64
	Top, Bottom   float64
	Series        []ChartSeries
	XTicks        []ChartTick
	YTicks        []ChartTick
}

// NewTrajectoryChart plots prediction, target and error against the iteration
// with the y axis fixed to [0, 5].
func NewTrajectoryChart(t Trajectory) LineChart {
	c := LineChart{
		Width:  chartWidth,
		Height: chartHeight,
		Left:   chartPadding,
		Right:  chartWidth - chartPadding/2,
		Top:    chartPadding / 2,
		Bottom: chartHeight - chartPadding,
	}

	n := t.Len()
	xs := make([]float64, n)
	preds := make([]float64, n)
	targets := make([]float64, n)
	errs := make([]float64, n)
	for i, s := range t.Steps {
		xs[i] = c.x(i, n)
		preds[i] = c.y(s.Prediction)
		targets[i] = c.y(s.Target)
		errs[i] = c.y(s.Error)
	}
	c.Series = []ChartSeries{
		{Name: "Model Prediction", Color: "#8884d8", Points: svgPoints(xs, preds)},
		{Name: "User Preference", Color: "#82ca9d", Points: svgPoints(xs, targets)},
		{Name: "Prediction Error", Color: "#ff7300", Points: svgPoints(xs, errs)},
	}

	for v := 0; v <= int(chartYMax); v++ {
		c.YTicks = append(c.YTicks, ChartTick{Pos: c.y(float64(v)), Label: fmt.Sprintf("%d", v)})
	}
	step := 1
	if n > 10 {
		step = int(math.Ceil(float64(n) / 10))
	}
	for i := 0; i < n; i += step {
		c.XTicks = append(c.XTicks, ChartTick{Pos: xs[i], Label: fmt.Sprintf("%d", t.Steps[i].Iteration)})
	}
	return c
}

func (c LineChart) x(i, n int) float64 {
	if n <= 1 {
		return c.Left
	}
	return c.Left + (c.Right-c.Left)*float64(i)/float64(n-1)
}

// y maps a value in [0, chartYMax] to pixels, clipping values outside.
func (c LineChart) y(v float64) float64 {
	v = math.Min(chartYMax, math.Max(0, v))
	return c.Bottom - (c.Bottom-c.Top)*v/chartYMax
}

// svgPoints formats coordinate pairs as an SVG points attribute.
func svgPoints(xs, ys []float64) string {
	if len(xs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range xs {
		if i > 0 {
			sb.WriteString(" ")
		}
		// Handle NaN and Inf
		y := ys[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			y = 0
		}
		sb.WriteString(fmt.Sprintf("%.2f,%.2f", xs[i], y))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

type gaugeView struct {
	Label string
	Value float64
	Fill  float64
	Class string
}

var templateFuncs = template.FuncMap{
	"percent":  func(p float64) string { return fmt.Sprintf("%.2f%%", p*100) },
	"percent1": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	"fixed2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"bar":      func(p float64) string { return fmt.Sprintf("%.0fpx", p*400) },
	"bits": func(p float64) string {
		if p <= 0 {
			return "∞"
		}
		return fmt.Sprintf("%.2f", Surprisal(p))
	},
	"showRune": func(r rune) string { return showChar(string(r)) },
	"appURL":   func(base, id string) string { return base + id },
	"inc":      func(i int) int { return i + 1 },
	"dec":      func(i int) int { return i - 1 },
	"add":      func(a, b float64) float64 { return a + b },
	"sub":      func(a, b float64) float64 { return a - b },
	"gaugeArgs": func(label string, value, fill float64, class string) gaugeView {
		return gaugeView{Label: label, Value: value, Fill: fill, Class: class}
	},
}

// showChar makes whitespace visible in the ranked lists.
func showChar(s string) string {
	switch s {
	case " ":
		return "␣"
	case "\n":
		return "↵"
	}
	return s
}

var pages = template.Must(template.New("pages").Funcs(templateFuncs).Parse(pageTemplates))

// RenderDirectoryHTML writes the directory page.
func RenderDirectoryHTML(w io.Writer, page DirectoryPage) error {
	return pages.ExecuteTemplate(w, "directory", page)
}

// RenderPerplexityHTML writes the perplexity page.
func RenderPerplexityHTML(w io.Writer, page PerplexityPage) error {
	return pages.ExecuteTemplate(w, "perplexity", page)
}

// RenderOptimizationHTML writes the recommendation optimization page.
func RenderOptimizationHTML(w io.Writer, page OptimizationPage) error {
	return pages.ExecuteTemplate(w, "optimization", page)
}

// SavePerplexityHTML saves the perplexity page as a standalone file.
func SavePerplexityHTML(filename string, page PerplexityPage) error {
	return saveHTML(filename, func(w io.Writer) error { return RenderPerplexityHTML(w, page) })
}

// SaveOptimizationHTML saves the optimization page as a standalone file.
func SaveOptimizationHTML(filename string, page OptimizationPage) error {
	if !page.Ran {
		return fmt.Errorf("no optimization steps to save")
	}
	return saveHTML(filename, func(w io.Writer) error { return RenderOptimizationHTML(w, page) })
}

func saveHTML(filename string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("rendering %s: %w", filename, err)
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.}} - LLM Apps</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Roboto', 'Oxygen', 'Ubuntu', 'Cantarell', sans-serif;
            background: #0d1117;
            color: #c9d1d9;
            padding: 20px;
            line-height: 1.6;
        }
        a { color: #58a6ff; }
        .container { max-width: 1000px; margin: 0 auto; }
        h1 { font-size: 28px; margin-bottom: 10px; color: #58a6ff; }
        h2 { font-size: 18px; margin-bottom: 12px; }
        .subtitle { color: #8b949e; margin-bottom: 30px; font-size: 14px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 15px; margin-bottom: 20px; }
        .card { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 20px; margin-bottom: 20px; }
        .label { font-size: 12px; color: #8b949e; text-transform: uppercase; letter-spacing: 0.5px; }
        .value { font-size: 24px; font-weight: 600; color: #58a6ff; }
        .gauge { background: #30363d; border-radius: 8px; height: 16px; margin: 6px 0; }
        .gauge div { height: 16px; border-radius: 8px; }
        .unigram { background: #1f6feb; }
        .llm { background: #8957e5; }
        .strip { font-family: monospace; font-size: 22px; text-align: center; letter-spacing: 2px; padding: 10px; }
        .strip .past { color: #6e7681; }
        .strip .current { background: #d29922; color: #0d1117; border-radius: 3px; padding: 0 3px; }
        .rank { display: flex; align-items: center; margin-bottom: 4px; font-size: 13px; }
        .rank .ch { width: 32px; text-align: center; font-family: monospace; }
        .rank .bar { height: 18px; border-radius: 2px; margin-right: 8px; }
        .note { background: #272115; border: 1px solid #5a4a1c; border-radius: 6px; padding: 12px; font-size: 13px; margin-top: 12px; }
        input[type=text], input[type=number] { width: 100%; padding: 8px; background: #0d1117; color: #c9d1d9; border: 1px solid #30363d; border-radius: 6px; }
        input[type=range] { width: 100%; }
        button { padding: 8px 14px; background: #238636; color: #fff; border: 0; border-radius: 6px; cursor: pointer; }
        .nav { display: flex; justify-content: space-between; }
        .footer { text-align: center; color: #8b949e; font-size: 12px; margin-top: 40px; padding-top: 20px; border-top: 1px solid #30363d; }
    </style>
</head>
<body>
    <div class="container">
{{end}}

{{define "foot"}}
        <div class="footer">LLM Apps - generated by llm-apps</div>
    </div>
</body>
</html>
{{end}}

{{define "directory"}}{{template "head" "Directory"}}
        <h1>LLM Applications Directory</h1>
        <div class="subtitle">Small interactive visualizations of language-model ideas</div>
        <div class="grid">
        {{range .Apps}}
            <div class="card">
                <h2><a href="{{appURL $.BasePath .ID}}">{{.Name}}</a></h2>
                <p>{{.Description}}</p>
            </div>
        {{end}}
        </div>
{{template "foot"}}{{end}}

{{define "gauge"}}
            <div style="margin-bottom: 16px">
                <div class="nav"><span>{{.Label}}</span><span>{{fixed2 .Value}}</span></div>
                <div class="gauge"><div class="{{.Class}}" style="width: {{fixed2 .Fill}}%"></div></div>
                <div class="nav label"><span>Better (Lower Perplexity)</span><span>Worse (Higher Perplexity)</span></div>
            </div>
{{end}}

{{define "perplexity"}}{{template "head" "Perplexity"}}
        <p><a href="{{.BasePath}}">&larr; Back</a></p>
        <h1>Understanding Perplexity: Unigram vs LLM</h1>
        <div class="subtitle">Perplexity measures how "surprised" a model is by text. Lower perplexity means the model predicts the text with higher confidence.</div>

        <form class="card" method="get" action="{{appURL .BasePath "perplexity-visualization"}}">
            <div class="label">Sample text</div>
            <input type="text" name="text" value="{{.Text}}">
            <input type="hidden" name="cursor" value="{{.Cursor}}">
            <p style="margin-top: 10px"><button type="submit">Evaluate</button></p>
        </form>

        <div class="card">
            <h2>Perplexity Comparison</h2>
            {{template "gauge" (gaugeArgs "Unigram Model Perplexity" .Result.Unigram .UnigramFill "unigram")}}
            {{template "gauge" (gaugeArgs "LLM Perplexity" .Result.Context .ContextFill "llm")}}
            <div class="note"><strong>What this means:</strong> The LLM achieves lower perplexity because it uses context to make more informed predictions. The unigram model treats each character independently.</div>
        </div>

        <div class="card">
            <div class="nav">
                {{if .CanPrev}}<a href="{{appURL .BasePath "perplexity-visualization"}}?text={{.Text}}&amp;cursor={{dec .Cursor}}">&larr; Prev</a>{{else}}<span class="label">&larr; Prev</span>{{end}}
                {{if .CanNext}}<a href="{{appURL .BasePath "perplexity-visualization"}}?text={{.Text}}&amp;cursor={{inc .Cursor}}">Next &rarr;</a>{{else}}<span class="label">Next &rarr;</span>{{end}}
            </div>
            <div class="strip">{{range .Chars}}<span class="{{if .Current}}current{{else if .Past}}past{{end}}">{{.Text}}</span>{{end}}</div>
        </div>

        <div class="grid">
            <div class="card">
                <h2>Unigram Character Model</h2>
                {{if .HasCurrent}}
                <p>Current character: <strong>"{{.CurrentRaw}}"</strong></p>
                <p>Probability: <strong>{{percent .Current.UnigramProb}}</strong></p>
                <p class="label">Contribution to perplexity: {{bits .Current.UnigramProb}} bits</p>
                {{else}}<p>Current character: <strong>none</strong></p>{{end}}
                <h2 style="margin-top: 12px">Top {{len .UnigramTop}} character probabilities (always the same)</h2>
                {{range .UnigramTop}}<div class="rank"><span class="ch">{{showRune .Char}}</span><span class="bar unigram" style="width: {{bar .Prob}}"></span>{{percent1 .Prob}}</div>{{end}}
            </div>
            <div class="card">
                <h2>Large Language Model</h2>
                {{if .HasCurrent}}
                <p>Context: <strong>"{{.Context}}"</strong></p>
                <p>Probability given context: <strong>{{percent .Current.ContextProb}}</strong></p>
                <p class="label">Contribution to perplexity: {{bits .Current.ContextProb}} bits</p>
                {{end}}
                <h2 style="margin-top: 12px">Top predictions after "{{.ContextKey}}"</h2>
                {{range .ContextTop}}<div class="rank"><span class="ch">{{showRune .Char}}</span><span class="bar llm" style="width: {{bar .Prob}}"></span>{{percent1 .Prob}}</div>{{else}}<p class="label">No context yet</p>{{end}}
            </div>
        </div>

        <div class="card">
            <h2>How Perplexity Works</h2>
            <ol style="padding-left: 20px">
                <li>Calculate probability of each character in the sequence</li>
                <li>Take the negative log2 of each probability</li>
                <li>Average these values (cross-entropy)</li>
                <li>Perplexity = 2^(cross-entropy)</li>
            </ol>
            <p class="label" style="margin-top: 8px">Think of perplexity as the average number of guesses the model would need to predict each character.</p>
        </div>
{{template "foot"}}{{end}}

{{define "optimization"}}{{template "head" "Recommendation Optimization"}}
        <p><a href="{{.BasePath}}">&larr; Back</a></p>
        <h1>Recommendation Model Optimization</h1>
        <div class="subtitle">Gradient descent moves a predicted rating towards the user's actual preference.</div>

        <div class="grid">
            <form class="card" method="get" action="{{appURL .BasePath "recommendation-optimization"}}">
                <h2>Model Parameters</h2>
                <div class="label">User's Actual Preference</div>
                <input type="range" name="target" min="1" max="5" step="any" value="{{.Target}}">
                <p>Current Preference: {{fixed2 .Target}}/5</p>
                <div class="label">Initial Model Prediction</div>
                <input type="range" name="initial" min="1" max="5" step="any" value="{{.Initial}}">
                <p>Current Prediction: {{fixed2 .Initial}}/5</p>
                <div class="label">Optimization Iterations</div>
                <input type="number" name="iterations" value="{{.Iterations}}">
                <input type="hidden" name="lr" value="{{.LearningRate}}">
                <p style="margin-top: 10px"><button type="submit" name="run" value="1">Optimize Recommendation</button></p>
                {{if .Ran}}
                <div class="note">
                    <strong>Final Prediction</strong>
                    <p>Improved to: {{fixed2 .Trajectory.Final}}/5</p>
                    <p>Closer to User Preference: {{fixed2 .Target}}/5</p>
                </div>
                {{end}}
            </form>

            <div class="card">
                <h2>Optimization Process</h2>
                {{if .Ran}}
                <svg width="{{.Chart.Width}}" height="{{.Chart.Height}}" viewBox="0 0 {{.Chart.Width}} {{.Chart.Height}}">
                    {{range .Chart.YTicks}}<line x1="{{$.Chart.Left}}" x2="{{$.Chart.Right}}" y1="{{.Pos}}" y2="{{.Pos}}" stroke="#30363d" stroke-dasharray="3 3"/><text x="{{sub $.Chart.Left 10}}" y="{{.Pos}}" fill="#8b949e" font-size="11" text-anchor="end">{{.Label}}</text>{{end}}
                    {{range .Chart.XTicks}}<text x="{{.Pos}}" y="{{add $.Chart.Bottom 16}}" fill="#8b949e" font-size="11" text-anchor="middle">{{.Label}}</text>{{end}}
                    {{range .Chart.Series}}<polyline fill="none" stroke="{{.Color}}" stroke-width="2" points="{{.Points}}"/>{{end}}
                </svg>
                <div>{{range .Chart.Series}}<span style="color: {{.Color}}; margin-right: 12px">&#9632; {{.Name}}</span>{{end}}</div>
                {{else}}<p class="label">Press "Optimize Recommendation" to run gradient descent.</p>{{end}}
            </div>
        </div>

        <div class="card">
            <h2>How Gradient Descent Works Here</h2>
            <ul style="padding-left: 20px">
                <li>Calculate the difference between user preference and current prediction</li>
                <li>Use this error to make small adjustments (learning rate {{.LearningRate}})</li>
                <li>Gradually move the prediction closer to the actual preference</li>
                <li>Repeat until the prediction is very close to the user's preference</li>
            </ul>
        </div>
{{template "foot"}}{{end}}
`
