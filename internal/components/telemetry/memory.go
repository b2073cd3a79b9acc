package telemetry

import (
	"strings"
	"sync"
)

type ReportKind int

const (
	REPORT_BROKEN ReportKind = iota
	REPORT_WARNING
	REPORT_DEBUG
	REPORT_COUNT
)

type Report struct {
	Kind   ReportKind
	Id     string
	Params []any
	Count  int64
}

// MemoryAPI records every report it receives, it is meant to be used in tests
// to assert that a component reported (or did not report) breakage.
type MemoryAPI struct {
	mutex   *sync.Mutex
	reports *[]Report
}

func NewMemoryAPI() MemoryAPI {
	return MemoryAPI{
		mutex:   &sync.Mutex{},
		reports: &[]Report{},
	}
}

func (m MemoryAPI) add(r Report) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	*m.reports = append(*m.reports, r)
}

func (m MemoryAPI) ReportBroken(id string, params ...any) {
	m.add(Report{Kind: REPORT_BROKEN, Id: id, Params: params})
}

func (m MemoryAPI) ReportWarning(id string, params ...any) {
	m.add(Report{Kind: REPORT_WARNING, Id: id, Params: params})
}

func (m MemoryAPI) ReportDebug(msg string, params ...any) {
	m.add(Report{Kind: REPORT_DEBUG, Id: msg, Params: params})
}

func (m MemoryAPI) ReportCount(id string, count int64) {
	m.add(Report{Kind: REPORT_COUNT, Id: id, Count: count})
}

// Reports returns a copy of all reports of the given kind.
func (m MemoryAPI) Reports(kind ReportKind) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []Report
	for _, r := range *m.reports {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Has returns true if a report of the given kind has an id that ends with suffix.
func (m MemoryAPI) Has(kind ReportKind, suffix string) bool {
	for _, r := range m.Reports(kind) {
		if strings.HasSuffix(r.Id, suffix) {
			return true
		}
	}
	return false
}
