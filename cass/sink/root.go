package sink

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// rootSink implements pp2000: every event it mirrors its configured
// operand results into one long-lived container file, folder-per-event
// the way root_converter.cpp's changeDir nests a TDirectory per
// eventIdToDirectoryName, with each result copied as a border-inclusive
// histogram (PutHistogram) rather than the plain-array-plus-attributes
// shape pp1002 uses — TH1F/TH2F's actual bin layout, per
// copyHistToRootFile. A summary group is appended once at shutdown.
type rootSink struct {
	*proc.Base

	store  *config.Store
	name   string
	logger *zap.Logger

	entrySpecs   []entrySpec
	summarySpecs []entrySpec
	entries      []Entry
	summaryEntries []Entry

	filename string

	mu   sync.Mutex
	file *os.File
}

// NewROOTSink constructs pp2000.
func NewROOTSink(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	logger = newLogger(logger)
	s := &rootSink{
		store:    store,
		name:     name,
		logger:   logger,
		filename: "output.root",
	}
	s.Base = proc.NewBase(name, workers, result.NewValue, logger)
	s.LoadFunc = s.load
	s.LoadSettingsFunc = s.loadSettings
	s.ProcessFunc = s.process
	s.AboutToQuitFunc = s.aboutToQuit
	return s, nil
}

func (s *rootSink) load() error {
	s.entrySpecs = loadEntrySpecs(s.store, s.name, "operands")
	s.summarySpecs = loadEntrySpecs(s.store, s.name, "summary_operands")
	for _, spec := range s.entrySpecs {
		s.AddDependency(spec.operand)
	}
	for _, spec := range s.summarySpecs {
		s.AddDependency(spec.operand)
	}
	s.filename = s.store.String(s.name, "file_name", s.filename)
	return nil
}

func (s *rootSink) loadSettings(resolve func(string) (proc.Processor, error)) error {
	entries, err := resolveEntries(resolve, s.name, s.entrySpecs)
	if err != nil {
		s.logger.Warn("pp2000 disabled: operand resolution failed", zap.String("processor", s.name), zap.Error(err))
		return nil
	}
	summary, err := resolveEntries(resolve, s.name, s.summarySpecs)
	if err != nil {
		s.logger.Warn("pp2000 disabled: summary operand resolution failed", zap.String("processor", s.name), zap.Error(err))
		return nil
	}
	s.entries = entries
	s.summaryEntries = summary
	s.SetHidden(true)

	f, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("pp2000 %q: open %q: %w", s.name, s.filename, err)
	}
	s.file = f
	return nil
}

func (s *rootSink) process(evt *event.CASSEvent, _ *result.Result) error {
	if len(s.entries) == 0 || s.file == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := NewTree()
	dirname := evt.ID.String()
	for _, e := range s.entries {
		res, err := e.Processor.Result(uint64(evt.ID))
		if err != nil {
			s.logger.Error("pp2000: operand result unavailable",
				zap.String("processor", s.name), zap.String("operand", e.Processor.Name()), zap.Error(err))
			continue
		}
		res.RLock()
		grp := tree.Group(dirname + "/" + e.GroupName)
		err = grp.PutHistogram(e.ValName, res)
		res.RUnlock()
		if err != nil {
			s.logger.Error("pp2000: histogram not written", zap.String("processor", s.name), zap.Error(err))
		}
	}
	_, err := tree.WriteTo(s.file)
	return err
}

func (s *rootSink) aboutToQuit() error {
	if s.file == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.file.Close()
		s.file = nil
	}()

	if len(s.summaryEntries) == 0 {
		return nil
	}

	tree := NewTree()
	for _, e := range s.summaryEntries {
		res, err := e.Processor.Result(0)
		if err != nil {
			s.logger.Error("pp2000: summary operand result unavailable",
				zap.String("processor", s.name), zap.String("operand", e.Processor.Name()), zap.Error(err))
			continue
		}
		res.RLock()
		grp := tree.Group("Summary/" + e.GroupName)
		err = grp.PutHistogram(e.ValName, res)
		res.RUnlock()
		if err != nil {
			s.logger.Error("pp2000: summary histogram not written", zap.String("processor", s.name), zap.Error(err))
		}
	}
	_, err := tree.WriteTo(s.file)
	return err
}
