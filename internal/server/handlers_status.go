package server

import (
	"net/http"
	"os"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/fmtutil"
	"github.com/shirou/gopsutil/v3/process"
)

// countryStatusView is the JSON projection of domain.CountryStatus served
// over /server_status: snake_case fields, durations and memory rendered as
// operator-readable strings rather than raw numbers.
type countryStatusView struct {
	CountryCode string `json:"country_code"`
	ServerName  string `json:"server_name"`
	CountryName string `json:"country_name"`
	Continent   string `json:"continent"`
	Status      string `json:"status"`
	Substatus   string `json:"substatus,omitempty"`
	Progress    int    `json:"progress"`
	CityCount   int    `json:"city_count"`
	MemUsage    string `json:"mem_usage,omitempty"`
	StartupTime string `json:"startup_time,omitempty"`
	Trace       bool   `json:"trace"`
}

func toView(s *domain.CountryStatus) countryStatusView {
	v := countryStatusView{
		CountryCode: s.CountryCode,
		ServerName:  s.ServerName,
		CountryName: s.CountryName,
		Continent:   s.Continent,
		Status:      string(s.Status),
		Substatus:   s.Substatus,
		Progress:    s.Progress,
		CityCount:   s.CityCount,
		Trace:       s.Trace,
	}
	if s.Status == domain.StatusStarted {
		v.MemUsage = fmtutil.Bytes(s.MemUsage)
		v.StartupTime = fmtutil.Duration(s.StartupDur)
	}
	return v
}

// serverStatusResponse is the /server_status JSON body.
type serverStatusResponse struct {
	CountryManagerTrace bool                `json:"country_manager_trace"`
	ErlangMemoryUsage   string               `json:"erlang_memory_usage"`
	Servers             []countryStatusView `json:"servers"`
}

// handleServerStatus serves GET /server_status. Non-GET returns 405, as the
// spec requires for the status path.
func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trace, servers, err := s.mgr.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	views := make([]countryStatusView, len(servers))
	for i, rec := range servers {
		views[i] = toView(rec)
	}

	s.writeJSON(w, http.StatusOK, serverStatusResponse{
		CountryManagerTrace: trace,
		ErlangMemoryUsage:   fmtutil.Bytes(processRSS()),
		Servers:             views,
	})
}

// processRSS is the resident memory total for the whole process, the
// nearest Go analogue of erlang:memory/0's process-wide total.
func processRSS() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

const serverInfoPage = `<!DOCTYPE html>
<html>
<head><title>geosearch fleet status</title></head>
<body>
<h1>geosearch fleet status</h1>
<p>Live status is served as JSON at <a href="/server_status">/server_status</a>.</p>
<p>Search is available at <code>/search?search_term=&lt;str&gt;</code>.</p>
</body>
</html>
`

// handleServerInfo serves the static admin HTML page.
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(serverInfoPage))
}
