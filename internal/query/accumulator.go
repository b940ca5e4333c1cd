package query

import "endpointwatch/internal/domain"

// Accumulator folds log records into running statistics. It is associative:
// records can arrive page by page and the result is the same as a single
// pass, which is what lets Stats stream over windows larger than memory.
type Accumulator struct {
	total int
	up    int

	resp  meanAcc
	dns   meanAcc
	conn  meanAcc
	tot   meanAcc
	codes map[int]int
}

// meanAcc averages only the values that were actually measured.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m *meanAcc) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

func NewAccumulator() *Accumulator {
	return &Accumulator{codes: make(map[int]int)}
}

func (a *Accumulator) Add(rec *domain.LogRecord) {
	a.total++
	if rec.Up {
		a.up++
	}
	a.resp.add(rec.ResponseTimeMS)
	a.dns.add(rec.DNSLatencyMS)
	a.conn.add(rec.ConnectLatencyMS)
	a.tot.add(rec.TotalLatencyMS)
	if rec.StatusCode != nil {
		a.codes[*rec.StatusCode]++
	}
}

func (a *Accumulator) Stats() domain.LogStats {
	s := domain.LogStats{
		TotalChecks:      a.total,
		SuccessfulChecks: a.up,
		FailedChecks:     a.total - a.up,
		AvgResponseMS:    a.resp.mean(),
		AvgDNSMS:         a.dns.mean(),
		AvgConnectMS:     a.conn.mean(),
		AvgTotalMS:       a.tot.mean(),
		StatusCodes:      a.codes,
	}
	if a.total > 0 {
		s.UptimePercentage = float64(a.up) / float64(a.total) * 100
	}
	return s
}
