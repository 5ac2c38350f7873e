package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mit-pdos/go-ptree/config"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/flatfs"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/logger"
	"github.com/mit-pdos/go-ptree/metrics"
)

type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(cfg.Logger())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: lg}, nil
}

func (e *env) opts() jrnl.Options {
	return jrnl.Options{
		Logger:     e.logger,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		LogSectors: e.cfg.LogSectors,
		MaxTrees:   e.cfg.MaxTrees,
		Workers:    e.cfg.Workers,
	}
}

// openDisk opens the configured disk. With create set the image is created
// or resized to the configured size; otherwise its current size is used.
func (e *env) openDisk(create bool) (disk.Disk, error) {
	n := e.cfg.NumSectors
	if e.cfg.Backend == config.BackendMem {
		return disk.NewMemDisk(n), nil
	}
	osfs := afero.NewOsFs()
	if !create {
		sz, err := disk.AferoSize(osfs, e.cfg.DiskPath)
		if err != nil {
			return nil, err
		}
		n = sz
	}
	switch e.cfg.Backend {
	case config.BackendAfero:
		return disk.NewAferoDisk(osfs, e.cfg.DiskPath, n)
	case config.BackendGoose:
		return disk.NewGooseFileDisk(e.cfg.DiskPath, n)
	default:
		return disk.NewFileDisk(e.cfg.DiskPath, n)
	}
}

type session struct {
	*env
	log *jrnl.Log
	fs  *flatfs.FS
}

func openSession() (*session, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	d, err := e.openDisk(false)
	if err != nil {
		return nil, err
	}
	l, err := jrnl.Open(d, e.opts())
	if err != nil {
		d.Close()
		return nil, err
	}
	return &session{env: e, log: l, fs: flatfs.New(l)}, nil
}

func (s *session) close() error {
	defer s.logger.Sync()
	return s.log.Shutdown()
}

// atomically runs f in a transaction, committing if f succeeds.
func (s *session) atomically(f func(tid jrnl.TransId) error) error {
	tid := s.fs.Begin()
	if err := f(tid); err != nil {
		s.fs.Abort(tid)
		return err
	}
	return s.fs.Commit(tid)
}
