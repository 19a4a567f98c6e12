package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// cassVersion is stamped into every container's root "cass-version"
// dataset, matching hdf5_converter.cpp's WriteEntry constructor.
const cassVersion = "cassgo-1.0"

// defaultMaxFileSizeBytes mirrors pp1002's default
// "MaximumFileSize_GB" of 200.
const defaultMaxFileSizeBytes = int64(200) * 1024 * 1024 * 1024

// hdf5Sink implements pp1002: it copies a configured set of operand
// results into a container tree per event (or appends them to one
// rolling aggregate file), plus an optional summary write at
// shutdown. Its own Result is never meaningful — like
// original_source's pp1002::result(), nothing should ever call it.
type hdf5Sink struct {
	*proc.Base

	store  *config.Store
	name   string
	logger *zap.Logger

	entrySpecs        []entrySpec
	summarySpecs      []entrySpec
	entries           []Entry
	summaryEntries    []Entry

	basename          string
	compressLevel     int
	maxFilesPerSubdir int
	maxFileSize       int64
	multipleEvents    bool

	// mu is the sink-local mutex spec.md §5 names as one of the four
	// suspension points: file writes within one sink never interleave.
	mu sync.Mutex

	fileCounter   int
	subdirCounter int

	aggregateFile  *os.File
	aggregateSize  int64
	aggregateIndex int
}

// NewHDF5Sink constructs pp1002.
func NewHDF5Sink(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	logger = newLogger(logger)
	s := &hdf5Sink{
		store:    store,
		name:     name,
		logger:   logger,
		basename: "output",
	}
	s.Base = proc.NewBase(name, workers, result.NewValue, logger)
	s.LoadFunc = s.load
	s.LoadSettingsFunc = s.loadSettings
	s.ProcessFunc = s.process
	s.AboutToQuitFunc = s.aboutToQuit
	return s, nil
}

func (s *hdf5Sink) load() error {
	s.entrySpecs = loadEntrySpecs(s.store, s.name, "operands")
	s.summarySpecs = loadEntrySpecs(s.store, s.name, "summary_operands")
	for _, spec := range s.entrySpecs {
		s.AddDependency(spec.operand)
	}
	for _, spec := range s.summarySpecs {
		s.AddDependency(spec.operand)
	}

	s.basename = s.store.String(s.name, "file_base_name", s.basename)
	s.compressLevel = s.store.Int(s.name, "compress_level", 2)
	s.maxFilesPerSubdir = s.store.Int(s.name, "max_files_per_subdir", -1)
	s.maxFileSize = int64(s.store.Int(s.name, "max_file_size_bytes", int(defaultMaxFileSizeBytes)))
	s.multipleEvents = s.store.Bool(s.name, "write_multiple_events_in_one_file", false)
	return nil
}

func (s *hdf5Sink) loadSettings(resolve func(string) (proc.Processor, error)) error {
	entries, err := resolveEntries(resolve, s.name, s.entrySpecs)
	if err != nil {
		s.entries = nil
		s.summaryEntries = nil
		s.logger.Warn("pp1002 disabled: operand resolution failed",
			zap.String("processor", s.name), zap.Error(err))
		return nil
	}
	summary, err := resolveEntries(resolve, s.name, s.summarySpecs)
	if err != nil {
		s.entries = nil
		s.summaryEntries = nil
		s.logger.Warn("pp1002 disabled: summary operand resolution failed",
			zap.String("processor", s.name), zap.Error(err))
		return nil
	}
	s.entries = entries
	s.summaryEntries = summary
	s.SetHidden(true)
	return nil
}

func (s *hdf5Sink) process(evt *event.CASSEvent, _ *result.Result) error {
	if len(s.entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.multipleEvents {
		return s.writeEventAggregate(evt)
	}
	return s.writeEventSingleFile(evt)
}

func (s *hdf5Sink) buildTree(baseGroup string, entries []Entry, evtID uint64) *Tree {
	tree := NewTree()
	tree.SetVersionString(cassVersion)
	for _, e := range entries {
		res, err := e.Processor.Result(evtID)
		if err != nil {
			s.logger.Error("pp1002: operand result unavailable",
				zap.String("processor", s.name), zap.String("operand", e.Processor.Name()), zap.Error(err))
			continue
		}
		res.RLock()
		grp := tree.Group(baseGroup + "/" + e.GroupName)
		err = grp.PutResult(e.ValName, res, s.compressLevel > 0)
		res.RUnlock()
		if err != nil {
			s.logger.Error("pp1002: result not written", zap.String("processor", s.name), zap.Error(err))
		}
	}
	return tree
}

func (s *hdf5Sink) writeEventSingleFile(evt *event.CASSEvent) error {
	if s.maxFilesPerSubdir != -1 && s.fileCounter == s.maxFilesPerSubdir {
		s.fileCounter = 0
		s.subdirCounter++
	}
	s.fileCounter++

	filename := fmt.Sprintf("%s_%s.h5", s.basename, evt.ID.String())
	if s.maxFilesPerSubdir != -1 {
		dir, err := subdirPath(s.basename, s.subdirCounter)
		if err != nil {
			return err
		}
		filename = fmt.Sprintf("%s/%s_%s.h5", dir, filepath.Base(s.basename), evt.ID.String())
	}

	tree := s.buildTree("", s.entries, uint64(evt.ID))
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("pp1002 %q: create %q: %w", s.name, filename, err)
	}
	defer f.Close()
	_, err = tree.WriteTo(f)
	return err
}

func (s *hdf5Sink) writeEventAggregate(evt *event.CASSEvent) error {
	if s.aggregateFile != nil && s.aggregateSize > s.maxFileSize {
		s.aggregateFile.Close()
		s.aggregateFile = nil
		s.aggregateIndex++
	}
	if s.aggregateFile == nil {
		filename := fmt.Sprintf("%s_%s.h5", s.basename, alphaSuffix(s.aggregateIndex))
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("pp1002 %q: create %q: %w", s.name, filename, err)
		}
		s.aggregateFile = f
		s.aggregateSize = 0
	}

	tree := s.buildTree(evt.ID.String(), s.entries, uint64(evt.ID))
	n, err := tree.WriteTo(s.aggregateFile)
	s.aggregateSize += n
	if err != nil {
		// spec.md §7 IOError: close the broken file, roll the alphabetic
		// counter and resume writing with the next event's file.
		s.aggregateFile.Close()
		s.aggregateFile = nil
		s.aggregateIndex++
		s.logger.Error("pp1002: aggregate file write failed, rolling to a new file",
			zap.String("processor", s.name), zap.Error(err))
		return nil
	}
	return nil
}

func (s *hdf5Sink) aboutToQuit() error {
	if len(s.summaryEntries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.multipleEvents {
		if s.aggregateFile == nil {
			return nil
		}
		tree := s.buildTree("Summary", s.summaryEntries, 0)
		_, err := tree.WriteTo(s.aggregateFile)
		s.aggregateFile.Close()
		s.aggregateFile = nil
		return err
	}

	tree := s.buildTree("", s.summaryEntries, 0)
	filename := fmt.Sprintf("%s_Summary.h5", s.basename)
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("pp1002 %q: create %q: %w", s.name, filename, err)
	}
	defer f.Close()
	_, err = tree.WriteTo(f)
	return err
}
