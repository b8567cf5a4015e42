package postings

import (
	"cmp"
	"slices"
	"time"
)

const (
	recentWindow = 7 * 24 * time.Hour
	topCompanies = 10
)

type CompanyCount struct {
	Company string `json:"company"`
	Count   int    `json:"count"`
}

// Summary describes the stored postings.
type Summary struct {
	Total        int            `json:"total_jobs"`
	ByStatus     map[Status]int `json:"by_status"`
	ByBoard      map[Board]int  `json:"by_job_board"`
	TopCompanies []CompanyCount `json:"top_companies"`
	Recent       int            `json:"recent_jobs"`
}

// Stats counts postings by status, board and company. Recent covers the last seven days before now.
func Stats(items []JobPosting, now time.Time) Summary {
	s := Summary{
		Total:    len(items),
		ByStatus: make(map[Status]int),
		ByBoard:  make(map[Board]int),
	}
	companies := make(map[string]int)
	cutoff := now.Add(-recentWindow)
	for _, p := range items {
		s.ByStatus[p.Status]++
		s.ByBoard[p.Board]++
		if p.Company != "" {
			companies[p.Company]++
		}
		if !p.ScrapedDate.Before(cutoff) {
			s.Recent++
		}
	}
	for name, n := range companies {
		s.TopCompanies = append(s.TopCompanies, CompanyCount{Company: name, Count: n})
	}
	slices.SortFunc(s.TopCompanies, func(a, b CompanyCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Company, b.Company)
	})
	if len(s.TopCompanies) > topCompanies {
		s.TopCompanies = s.TopCompanies[:topCompanies]
	}
	return s
}

type BoardTally struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ApplicationReport summarises a set of apply attempts.
type ApplicationReport struct {
	Total          int                  `json:"total_applications"`
	Successful     int                  `json:"successful_applications"`
	Failed         int                  `json:"failed_applications"`
	SuccessRate    float64              `json:"success_rate"`
	ByBoard        map[Board]BoardTally `json:"by_job_board"`
	FailureReasons map[string]int       `json:"failure_reasons"`
}

// Report tallies results. SuccessRate is a percentage and is zero for an empty input.
func Report(results []ApplicationResult) ApplicationReport {
	r := ApplicationReport{
		Total:          len(results),
		ByBoard:        make(map[Board]BoardTally),
		FailureReasons: make(map[string]int),
	}
	for _, res := range results {
		tally := r.ByBoard[res.Board]
		tally.Total++
		if res.Success {
			r.Successful++
			tally.Successful++
		} else {
			r.Failed++
			tally.Failed++
			reason := res.Message
			if reason == "" {
				reason = string(res.Outcome)
			}
			r.FailureReasons[reason]++
		}
		r.ByBoard[res.Board] = tally
	}
	if r.Total > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.Total) * 100
	}
	return r
}
