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
	"github.com/lcls-cass/cassgo/cass/wire"
)

// cbfSink implements pp1500: one image file per event for a single
// configured 2-D operand, plus an optional summary image written once
// at shutdown. No CBF-writing Go package exists in the example pack or
// its ecosystem reach, so writeCBF hand-rolls the loose ASCII-header +
// binary-array-section layout spec.md §6 describes, grounded on
// cbf_output.cpp's CBF::write(filename, hist.begin(), hist.shape())
// call shape (one flat write per event, no incremental state).
type cbfSink struct {
	*proc.Base

	store  *config.Store
	name   string
	logger *zap.Logger

	operandName        string
	summaryOperandName string
	operand            proc.Processor
	summaryOperand      proc.Processor

	basename          string
	maxFilesPerSubdir int
	fileCounter       int
	subdirCounter     int

	mu sync.Mutex
}

// NewCBFSink constructs pp1500.
func NewCBFSink(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	logger = newLogger(logger)
	s := &cbfSink{
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

func (s *cbfSink) load() error {
	s.operandName = s.store.String(s.name, "operand", "")
	if s.operandName != "" {
		s.AddDependency(s.operandName)
	}
	s.summaryOperandName = s.store.String(s.name, "summary_operand", "")
	if s.summaryOperandName != "" {
		s.AddDependency(s.summaryOperandName)
	}
	s.basename = s.store.String(s.name, "file_base_name", s.basename)
	s.maxFilesPerSubdir = s.store.Int(s.name, "max_files_per_subdir", -1)
	return nil
}

func (s *cbfSink) loadSettings(resolve func(string) (proc.Processor, error)) error {
	if s.operandName != "" {
		p, err := resolve(s.operandName)
		if err != nil {
			s.logger.Warn("pp1500 disabled: operand resolution failed", zap.String("processor", s.name), zap.Error(err))
			return nil
		}
		if res, rerr := p.Result(0); rerr == nil && res.Shape() != result.Shape2D {
			return fmt.Errorf("pp1500 %q: operand %q is not a 2-D result (shape %s)", s.name, s.operandName, res.Shape())
		}
		s.operand = p
	}
	if s.summaryOperandName != "" {
		p, err := resolve(s.summaryOperandName)
		if err != nil {
			s.logger.Warn("pp1500 disabled: summary operand resolution failed", zap.String("processor", s.name), zap.Error(err))
			return nil
		}
		if res, rerr := p.Result(0); rerr == nil && res.Shape() != result.Shape2D {
			return fmt.Errorf("pp1500 %q: summary operand %q is not a 2-D result (shape %s)", s.name, s.summaryOperandName, res.Shape())
		}
		s.summaryOperand = p
	}
	s.SetHidden(true)
	return nil
}

func (s *cbfSink) process(evt *event.CASSEvent, _ *result.Result) error {
	if s.operand == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxFilesPerSubdir != -1 && s.fileCounter == s.maxFilesPerSubdir {
		s.fileCounter = 0
		s.subdirCounter++
	}
	s.fileCounter++

	res, err := s.operand.Result(uint64(evt.ID))
	if err != nil {
		return nil
	}

	filename := fmt.Sprintf("%s_%s.cbf", s.basename, evt.ID.String())
	if s.maxFilesPerSubdir != -1 {
		dir, derr := subdirPath(s.basename, s.subdirCounter)
		if derr != nil {
			return derr
		}
		filename = fmt.Sprintf("%s/%s_%s.cbf", dir, filepath.Base(s.basename), evt.ID.String())
	}

	res.RLock()
	err = writeCBF(filename, res)
	res.RUnlock()
	return err
}

func (s *cbfSink) aboutToQuit() error {
	if s.summaryOperand == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.summaryOperand.Result(0)
	if err != nil {
		return nil
	}
	filename := fmt.Sprintf("%s_Summary.cbf", s.basename)
	res.RLock()
	defer res.RUnlock()
	return writeCBF(filename, res)
}

// writeCBF writes a loose CBF-style file: a short ASCII header
// describing the array's shape, followed by a raw little-endian
// float32 binary section, bracketed by a sentinel line a future real
// CBF encoder (miniCBF/octet-stream) would replace wholesale.
func writeCBF(filename string, res *result.Result) error {
	if res.Shape() != result.Shape2D {
		return fmt.Errorf("sink: writeCBF: result %q is not 2-D (shape %s)", filename, res.Shape())
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("sink: writeCBF: create %q: %w", filename, err)
	}
	defer f.Close()

	nx, ny := res.NBinsX(), res.NBinsY()
	header := fmt.Sprintf(
		"###CBF: CASS-GENERATED\n"+
			"data_image\n\n"+
			"_array_data.header_convention \"CASS-SIMPLE\"\n"+
			"_array_data.data\n\n"+
			"--CASS-BINARY-DATA--\n"+
			"X-Binary-Size-Fastest-Dimension: %d\n"+
			"X-Binary-Size-Second-Dimension: %d\n"+
			"X-Binary-Element-Type: \"signed 32-bit real IEEE\"\n\n", nx, ny)
	if _, err := f.WriteString(header); err != nil {
		return fmt.Errorf("sink: writeCBF: %w", err)
	}

	wr := wire.NewWriter(f)
	wr.U32(uint32(nx))
	wr.U32(uint32(ny))
	for _, v := range res.Storage() {
		wr.F32(v)
	}
	if err := wr.Err(); err != nil {
		return fmt.Errorf("sink: writeCBF: %w", err)
	}
	_, err = f.WriteString("\n--CASS-BINARY-DATA--\n")
	return err
}
