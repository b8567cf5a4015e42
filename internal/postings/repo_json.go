package postings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JSONRepo keeps postings in one JSON document and the application log in a sibling file.
// Every write replaces the file via rename, so a crash leaves either the old or the new snapshot.
type JSONRepo struct {
	mu      sync.Mutex
	path    string
	logPath string
	now     func() time.Time
}

type jsonPostingsFile struct {
	Jobs        []JobPosting `json:"jobs"`
	LastUpdated time.Time    `json:"last_updated"`
	TotalJobs   int          `json:"total_jobs"`
}

type jsonApplicationsFile struct {
	Applications []ApplicationResult `json:"applications"`
	LastUpdated  time.Time           `json:"last_updated"`
}

// NewJSONRepo stores postings at path (e.g. data/job_postings.json) and the log at
// data/job_postings_applications.json.
func NewJSONRepo(path string) *JSONRepo {
	return &JSONRepo{
		path:    path,
		logPath: strings.TrimSuffix(path, filepath.Ext(path)) + "_applications.json",
		now:     time.Now,
	}
}

func (r *JSONRepo) Save(ctx context.Context, items []JobPosting) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readPostings()
	if err != nil {
		return SaveResult{}, err
	}
	index := make(map[Key]int, len(doc.Jobs))
	for i, p := range doc.Jobs {
		index[p.Key()] = i
	}

	var res SaveResult
	for _, item := range items {
		p, err := prepare(item, r.now())
		if err != nil {
			return SaveResult{}, err
		}
		k := p.Key()
		if i, ok := index[k]; ok {
			doc.Jobs[i] = merge(doc.Jobs[i], p)
			res.Updated++
			continue
		}
		index[k] = len(doc.Jobs)
		doc.Jobs = append(doc.Jobs, p)
		res.Inserted++
	}
	if err := r.writePostings(doc); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

func (r *JSONRepo) UpdateStatus(ctx context.Context, key Key, change StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readPostings()
	if err != nil {
		return err
	}
	for i := range doc.Jobs {
		if doc.Jobs[i].Key() != key {
			continue
		}
		if err := applyChange(&doc.Jobs[i], change); err != nil {
			return err
		}
		return r.writePostings(doc)
	}
	return ErrNotFound
}

func (r *JSONRepo) Get(ctx context.Context, key Key) (JobPosting, error) {
	items, err := r.Load(ctx)
	if err != nil {
		return JobPosting{}, err
	}
	for _, p := range items {
		if p.Key() == key {
			return p, nil
		}
	}
	return JobPosting{}, ErrNotFound
}

func (r *JSONRepo) Load(ctx context.Context) ([]JobPosting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.readPostings()
	if err != nil {
		return nil, err
	}
	return doc.Jobs, nil
}

func (r *JSONRepo) LogApplication(ctx context.Context, result ApplicationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc jsonApplicationsFile
	if err := readJSON(r.logPath, &doc); err != nil {
		return err
	}
	doc.Applications = append(doc.Applications, result)
	doc.LastUpdated = r.now().UTC()
	return writeJSON(r.logPath, doc)
}

func (r *JSONRepo) Applications(ctx context.Context, since time.Time) ([]ApplicationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc jsonApplicationsFile
	if err := readJSON(r.logPath, &doc); err != nil {
		return nil, err
	}
	var out []ApplicationResult
	for _, res := range doc.Applications {
		if !res.Timestamp.Before(since) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *JSONRepo) readPostings() (jsonPostingsFile, error) {
	var doc jsonPostingsFile
	if err := readJSON(r.path, &doc); err != nil {
		return jsonPostingsFile{}, err
	}
	return doc, nil
}

func (r *JSONRepo) writePostings(doc jsonPostingsFile) error {
	doc.LastUpdated = r.now().UTC()
	doc.TotalJobs = len(doc.Jobs)
	return writeJSON(r.path, doc)
}

// readJSON leaves dst untouched when the file does not exist yet.
func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
