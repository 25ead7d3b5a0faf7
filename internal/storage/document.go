package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ostehost/command-central-sub001/internal/models"
)

// Document is the serialized state shared by the JSON-file adapter and every
// Backup: { repos: { [rootPath]: {...} }, nextRepoId }.
type Document struct {
	Repos      map[string]*RepoDocument `json:"repos"`
	NextRepoID int64                    `json:"nextRepoId"`
}

// RepoDocument is the persisted state of one repository.
type RepoDocument struct {
	ID          int64                      `json:"id"`
	DisplayName string                     `json:"displayName"`
	NextOrder   int64                      `json:"nextOrder"`
	Records     []models.DeletedFileRecord `json:"records"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Repos: make(map[string]*RepoDocument), NextRepoID: 1}
}

// DecodeDocument parses a document, as produced by Backup.
func DecodeDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode storage document: %w", err)
	}
	if doc.Repos == nil {
		doc.Repos = make(map[string]*RepoDocument)
	}
	if doc.NextRepoID < 1 {
		doc.NextRepoID = 1
	}
	// recover from a counter that fell behind the allocated IDs
	for _, repo := range doc.Repos {
		if repo.ID >= doc.NextRepoID {
			doc.NextRepoID = repo.ID + 1
		}
	}
	return doc, nil
}

// Encode serializes the document as UTF-8 JSON.
func (d *Document) Encode(indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(d, "", "  ")
	}
	return json.Marshal(d)
}

func (d *Document) clone() *Document {
	out := &Document{Repos: make(map[string]*RepoDocument, len(d.Repos)), NextRepoID: d.NextRepoID}
	for root, repo := range d.Repos {
		cp := *repo
		cp.Records = append([]models.DeletedFileRecord(nil), repo.Records...)
		out.Repos[root] = &cp
	}
	return out
}

func (d *Document) ensureRepository(root, displayName string) int64 {
	if repo, ok := d.Repos[root]; ok {
		return repo.ID
	}
	id := d.NextRepoID
	d.NextRepoID++
	d.Repos[root] = &RepoDocument{ID: id, DisplayName: displayName, NextOrder: 1}
	return id
}

func (d *Document) repoByID(id int64) (string, *RepoDocument, bool) {
	for root, repo := range d.Repos {
		if repo.ID == id {
			return root, repo, true
		}
	}
	return "", nil, false
}

// save applies the write-once rule and returns how many records were inserted.
func (d *Document) save(repoID int64, records []models.DeletedFileRecord) (int, error) {
	_, repo, ok := d.repoByID(repoID)
	if !ok {
		return 0, fmt.Errorf("repository %d: %w", repoID, ErrUnknownRepository)
	}
	known := make(map[string]struct{}, len(repo.Records))
	for _, r := range repo.Records {
		known[r.Path] = struct{}{}
	}
	inserted := 0
	for _, r := range records {
		if r.Path == "" {
			continue
		}
		if _, exists := known[r.Path]; exists {
			continue
		}
		known[r.Path] = struct{}{}
		if r.Order <= 0 {
			r.Order = repo.NextOrder
		}
		if r.Order >= repo.NextOrder {
			repo.NextOrder = r.Order + 1
		}
		r.IsVisible = false
		repo.Records = append(repo.Records, r)
		inserted++
	}
	return inserted, nil
}

func (d *Document) load(repoID int64) ([]models.DeletedFileRecord, error) {
	_, repo, ok := d.repoByID(repoID)
	if !ok {
		return nil, fmt.Errorf("repository %d: %w", repoID, ErrUnknownRepository)
	}
	return markVisible(append([]models.DeletedFileRecord(nil), repo.Records...)), nil
}

func (d *Document) queryByRepository(root string) []models.DeletedFileRecord {
	repo, ok := d.Repos[root]
	if !ok {
		return nil
	}
	return markVisible(append([]models.DeletedFileRecord(nil), repo.Records...))
}

func (d *Document) entries(keep func(models.DeletedFileRecord) bool) []Entry {
	var out []Entry
	for root, repo := range d.Repos {
		for _, r := range repo.Records {
			if keep != nil && !keep(r) {
				continue
			}
			r.IsVisible = true
			out = append(out, Entry{RepoID: repo.ID, RepoRoot: root, DeletedFileRecord: r})
		}
	}
	sortNewestFirst(out)
	return out
}

func (d *Document) queryByTimeRange(start, end int64) []Entry {
	return d.entries(func(r models.DeletedFileRecord) bool {
		return r.Timestamp >= start && r.Timestamp <= end
	})
}

func (d *Document) queryRecent(limit int) []Entry {
	if limit <= 0 {
		return nil
	}
	out := d.entries(nil)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (d *Document) stats(backend string) Stats {
	s := Stats{Backend: backend, Repositories: len(d.Repos)}
	for _, repo := range d.Repos {
		for _, r := range repo.Records {
			s.Records++
			if s.OldestTimestamp == 0 || r.Timestamp < s.OldestTimestamp {
				s.OldestTimestamp = r.Timestamp
			}
			if r.Timestamp > s.NewestTimestamp {
				s.NewestTimestamp = r.Timestamp
			}
		}
	}
	return s
}

// compact orders each repository's records by insertion order.
func (d *Document) compact() {
	for _, repo := range d.Repos {
		sort.SliceStable(repo.Records, func(i, j int) bool {
			return repo.Records[i].Order < repo.Records[j].Order
		})
	}
}
