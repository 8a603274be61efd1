// Package session allocates the output folder of a live run:
//
//	{outputDir}/{YYYY-MM-DD}/run_N/
package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"go.uber.org/zap"
)

var (
	runPattern  = regexp.MustCompile(`^run_(\d+)$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Manager owns the run folder of one process.
type Manager struct {
	outputDir string
	runID     string
	runNumber int
	sessionID string
	startedAt time.Time
	date      string
	runPath   string
	mu        sync.Mutex
	logger    *logger.Logger
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		outputDir: "",
		runID:     "",
		runNumber: 0,
		sessionID: "",
		startedAt: time.Time{},
		date:      "",
		runPath:   "",
		mu:        sync.Mutex{},
		logger:    log,
	}
}

// Initialize picks the next free run number for the day of now and creates its folder.
func (m *Manager) Initialize(outputDir string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outputDir = outputDir
	m.startedAt = now
	m.date = now.UTC().Format(time.DateOnly)

	runNumber, err := m.nextRunNumber(m.date)
	if err != nil {
		return err
	}

	m.runNumber = runNumber
	m.runID = "run_" + strconv.Itoa(runNumber)
	m.sessionID = uuid.New().String()
	m.runPath = filepath.Join(m.outputDir, m.date, m.runID)

	if err := os.MkdirAll(m.runPath, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to create run folder %s", m.runPath)
	}

	m.logger.Info("Session initialized",
		zap.String("run_id", m.runID),
		zap.String("session_id", m.sessionID),
		zap.String("path", m.runPath),
	)

	return nil
}

//nolint:funcorder // helper used by Initialize
func (m *Manager) nextRunNumber(date string) (int, error) {
	runs, err := m.listRuns(date)
	if err != nil {
		return 0, err
	}

	if len(runs) == 0 {
		return 1, nil
	}

	last, _ := strconv.Atoi(runPattern.FindStringSubmatch(runs[len(runs)-1])[1])

	return last + 1, nil
}

func (m *Manager) RunPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runPath
}

// RunID is the folder name, e.g. "run_2".
func (m *Manager) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runID
}

func (m *Manager) RunNumber() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runNumber
}

// SessionID is unique across days and hosts.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessionID
}

func (m *Manager) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startedAt
}

// FilePath joins filename onto the run folder.
func (m *Manager) FilePath(filename string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return filepath.Join(m.runPath, filename)
}

// ListRuns returns the run folders of date ordered by run number.
func (m *Manager) ListRuns(date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listRuns(date)
}

//nolint:funcorder // shared by ListRuns and nextRunNumber
func (m *Manager) listRuns(date string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.outputDir, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, errors.Wrap(errors.ErrCodeWriterFailed, "failed to read date directory", err)
	}

	runs := []string{}

	for _, entry := range entries {
		if entry.IsDir() && runPattern.MatchString(entry.Name()) {
			runs = append(runs, entry.Name())
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		a, _ := strconv.Atoi(runPattern.FindStringSubmatch(runs[i])[1])
		b, _ := strconv.Atoi(runPattern.FindStringSubmatch(runs[j])[1])

		return a < b
	})

	return runs, nil
}

// Dates returns every date folder under the output directory, oldest first.
func (m *Manager) Dates() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, errors.Wrap(errors.ErrCodeWriterFailed, "failed to read output directory", err)
	}

	dates := []string{}

	for _, entry := range entries {
		if entry.IsDir() && datePattern.MatchString(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}

	sort.Strings(dates)

	return dates, nil
}
