package playset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"playset/models"
)

// Extractor reads the metadata of the song stored at path.
type Extractor interface {
	Extract(ctx context.Context, path string) (models.Song, error)
}

// LoadPolicy decides what a failing item or set file does to a load.
type LoadPolicy int

const (
	// PolicySkip leaves the failing entry out and records it in the report.
	PolicySkip LoadPolicy = iota
	// PolicyAbort stops the load at the first failure.
	PolicyAbort
)

func (p LoadPolicy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "skip"
}

func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(s) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	}
	return PolicySkip, fmt.Errorf("unknown load policy %q", s)
}

type LoadOptions struct {
	ItemsDir   string
	SubsetsDir string
	Extractor  Extractor
	Policy     LoadPolicy
	// Workers bounds concurrent metadata extraction. Zero means 2 per CPU.
	Workers int
	Memo    bool
}

// LoadFailure is one item or set file that could not be loaded.
type LoadFailure struct {
	Name string
	Path string
	Err  error
}

func (f *LoadFailure) Error() string {
	return fmt.Sprintf("loading %s: %v", f.Path, f.Err)
}

func (f *LoadFailure) Unwrap() error {
	return f.Err
}

type LoadReport struct {
	Items    int
	Sets     int
	Failures []*LoadFailure
	Elapsed  time.Duration
}

// Err aggregates the recorded failures, or returns nil if there were none.
func (r *LoadReport) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// Load builds a library from a directory of songs and a directory of
// persisted sets. With PolicyAbort the first failure is returned as a
// *LoadFailure and no library is produced.
func Load(ctx context.Context, opts LoadOptions) (*Library, *LoadReport, error) {
	logger := log.WithFields(log.Fields{
		"module":  "library",
		"method":  "Load",
		"items":   opts.ItemsDir,
		"subsets": opts.SubsetsDir,
	})
	start := time.Now()
	report := &LoadReport{}

	universal, err := loadItems(ctx, opts, report)
	if err != nil {
		return nil, nil, err
	}
	report.Items = len(universal)
	logger.Debugf("extracted %d songs", len(universal))

	libOpts := []LibraryOption{WithSubsetsDir(opts.SubsetsDir)}
	if opts.Memo {
		libOpts = append(libOpts, WithMemo())
	}
	lib := NewLibrary(universal, libOpts...)

	if err := loadSubsets(ctx, lib, opts, report); err != nil {
		return nil, nil, err
	}
	report.Sets = lib.Len()
	report.Elapsed = time.Since(start)

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Path < report.Failures[j].Path
	})
	for _, f := range report.Failures {
		logger.Warnf("skipped %s: %v", f.Name, f.Err)
	}
	logger.Infof("loaded %d songs and %d sets in %v (%d skipped)",
		report.Items, report.Sets, report.Elapsed, len(report.Failures))
	return lib, report, nil
}

func loadItems(ctx context.Context, opts LoadOptions, report *LoadReport) (ItemSet, error) {
	if opts.Extractor == nil {
		return nil, fmt.Errorf("no metadata extractor configured")
	}
	entries, err := os.ReadDir(opts.ItemsDir)
	if err != nil {
		return nil, &IOError{Op: "read", Path: opts.ItemsDir, Err: err}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}

	songs := make([]*models.Song, len(entries))
	var mutex sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		i, name := i, entry.Name()
		path := filepath.Join(opts.ItemsDir, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			song, err := opts.Extractor.Extract(gctx, path)
			if err != nil {
				failure := &LoadFailure{Name: name, Path: path, Err: err}
				if opts.Policy == PolicyAbort {
					return failure
				}
				mutex.Lock()
				report.Failures = append(report.Failures, failure)
				mutex.Unlock()
				return nil
			}
			song.Name = name
			songs[i] = &song
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	universal := make(ItemSet, len(entries))
	for _, song := range songs {
		if song != nil {
			universal.Add(*song)
		}
	}
	return universal, nil
}

func loadSubsets(ctx context.Context, lib *Library, opts LoadOptions, report *LoadReport) error {
	entries, err := os.ReadDir(opts.SubsetsDir)
	if isNotExist(err) {
		if err := os.MkdirAll(opts.SubsetsDir, 0755); err != nil {
			return &IOError{Op: "mkdir", Path: opts.SubsetsDir, Err: err}
		}
		return nil
	}
	if err != nil {
		return &IOError{Op: "read", Path: opts.SubsetsDir, Err: err}
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(opts.SubsetsDir, name)
		if strings.HasSuffix(name, workInProgressSuffix) {
			log.Warnf("ignoring leftover work-in-progress file %s", path)
			continue
		}

		p, err := ReadPlayset(path, lib.Universal())
		if err == nil {
			err = lib.insert(p)
		}
		if err != nil {
			failure := &LoadFailure{Name: name, Path: path, Err: err}
			if opts.Policy == PolicyAbort {
				return failure
			}
			report.Failures = append(report.Failures, failure)
		}
	}
	return nil
}
