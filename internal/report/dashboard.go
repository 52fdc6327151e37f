package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
)

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"firstOpen": func(e Engagement) string {
		if e.FirstOpen == nil {
			return "N/A"
		}
		return e.FirstOpen.Format("02/01/2006 15:04")
	},
	"yesNo": func(b bool) string {
		if b {
			return "Sim"
		}
		return "Não"
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Dashboard - Email Marketing Analytics</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; }
        .card { background: white; padding: 20px; margin: 20px 0; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .metric { display: inline-block; text-align: center; margin: 10px 20px; }
        .metric-value { font-size: 2.5em; font-weight: bold; color: #2196F3; }
        .metric-label { font-size: 0.9em; color: #666; }
        .table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .table th, .table td { padding: 10px; text-align: left; border-bottom: 1px solid #ddd; }
        .table th { background-color: #f8f9fa; }
        h1, h2 { color: #333; }
        .update-time { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Email Marketing Analytics Dashboard</h1>
        <p class="update-time">Última atualização: {{.GeneratedAt.Format "02/01/2006 15:04:05"}}</p>

        <div class="card">
            <h2>Métricas Principais</h2>
            <div class="metric">
                <div class="metric-value">{{.Totals.Sent}}</div>
                <div class="metric-label">Emails Enviados</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Totals.Opened}}</div>
                <div class="metric-label">Abertos ({{pct .Totals.OpenRate}})</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Totals.Clicked}}</div>
                <div class="metric-label">Cliques ({{pct .Totals.ClickRate}})</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Totals.Replied}}</div>
                <div class="metric-label">Respostas ({{pct .Totals.ReplyRate}})</div>
            </div>
            <div class="metric">
                <div class="metric-value">{{.Totals.Unsubscribed}}</div>
                <div class="metric-label">Descadastros</div>
            </div>
        </div>

        <div class="card">
            <h2>Performance por Provedor</h2>
            <table class="table">
                <thead>
                    <tr>
                        <th>Provedor</th>
                        <th>Enviados</th>
                        <th>Abertos</th>
                        <th>Taxa Abertura</th>
                        <th>Cliques</th>
                        <th>Taxa Clique</th>
                    </tr>
                </thead>
                <tbody>
                {{range .Providers}}
                    <tr>
                        <td>{{.Provider}}</td>
                        <td>{{.Sent}}</td>
                        <td>{{.Opened}}</td>
                        <td>{{pct .OpenRate}}</td>
                        <td>{{.Clicked}}</td>
                        <td>{{pct .ClickRate}}</td>
                    </tr>
                {{end}}
                </tbody>
            </table>
        </div>

        <div class="card">
            <h2>Empresas Mais Engajadas</h2>
            <table class="table">
                <thead>
                    <tr>
                        <th>Empresa</th>
                        <th>Email</th>
                        <th>Aberturas</th>
                        <th>Cliques</th>
                        <th>Respondeu</th>
                        <th>Primeira Abertura</th>
                    </tr>
                </thead>
                <tbody>
                {{range .Top}}
                    <tr>
                        <td>{{.Identity}}</td>
                        <td>{{.Recipient}}</td>
                        <td>{{.Opens}}</td>
                        <td>{{.Clicks}}</td>
                        <td>{{yesNo .Replied}}</td>
                        <td>{{firstOpen .}}</td>
                    </tr>
                {{end}}
                </tbody>
            </table>
        </div>
    </div>
</body>
</html>
`))

// WriteDashboard renders the HTML dashboard for the stats
func WriteDashboard(w io.Writer, stats *CampaignStats) error {
	return dashboardTmpl.Execute(w, stats)
}

// SaveDashboard writes the dashboard to a file
func SaveDashboard(path string, stats *CampaignStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer f.Close()

	if err := WriteDashboard(f, stats); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}
