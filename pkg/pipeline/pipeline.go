// Package pipeline sequences the sweepvol stages: sort, respiration
// estimation and classification, and per-state volume resampling. It owns
// the redo/cache bookkeeping and output writing; the stages themselves are
// pure functions of their inputs.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sweepvol/internal/models"
	"sweepvol/internal/runcache"
	"sweepvol/pkg/config"
	"sweepvol/pkg/nifti"
	"sweepvol/pkg/report"
	"sweepvol/pkg/resample"
	"sweepvol/pkg/respiration"
	"sweepvol/pkg/sequence"
)

// Artifact filenames inside the output directory.
const (
	seqStackFile   = "sequence.nii"
	seqSidecarFile = "sequence.csv"
	signalFile     = "respiration.csv"
	reportDir      = "qc"
)

// Stage names used for cache records and CLI selection.
const (
	StageSort        = "sort"
	StageRespiration = "respiration"
	StageResample    = "resample"
)

// Pipeline orchestrates a reconstruction run.
type Pipeline struct {
	cfg   *config.Config
	log   *zap.Logger
	cache *runcache.Store
}

// New validates the configuration and creates a pipeline. A nil logger
// disables logging.
func New(cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, log: log}, nil
}

// Close releases the cache handle if one was opened.
func (p *Pipeline) Close() {
	if p.cache != nil {
		p.cache.Close()
	}
}

// Run executes the full pipeline on a 4D sweep acquisition. With redo
// disabled, every stage whose cache record matches the input and
// configuration fingerprint is skipped and its artifact reloaded, so a run
// that failed partway resumes from the last completed stage.
func (p *Pipeline) Run(inputPath string) error {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	p.openCache()

	fp, err := p.fingerprint(inputPath)
	if err != nil {
		return err
	}

	if p.cfg.Run.Redo {
		if p.cache != nil {
			if err := p.cache.InvalidateAll(); err != nil {
				p.log.Warn("cache invalidation failed", zap.Error(err))
			}
		}
	} else if p.stageDone(StageResample, fp) && p.volumesExist() {
		p.log.Info("reusing cached reconstruction", zap.String("dir", p.cfg.Output.Dir))
		return nil
	}

	seq, err := p.sequenceFor(fp, inputPath)
	if err != nil {
		return err
	}

	sig, asg, err := p.signalFor(fp, seq)
	if err != nil {
		return err
	}

	if err := p.ResampleStage(seq, sig, asg); err != nil {
		return err
	}
	p.record(StageResample, fp, p.cfg.Output.Dir)

	return nil
}

// sequenceFor reloads the sequence artifact when the sort stage's cache
// record matches the fingerprint, recomputing otherwise. An unusable
// artifact drops the stale record and recomputes.
func (p *Pipeline) sequenceFor(fp, inputPath string) (*models.SliceSequence, error) {
	if p.stageDone(StageSort, fp) {
		seq, err := p.LoadSequence()
		if err == nil {
			p.log.Info("reusing cached slice sequence", zap.Int("slices", len(seq.Slices)))
			return seq, nil
		}
		p.log.Warn("cached sequence artifact unusable, recomputing", zap.Error(err))
		p.invalidate(StageSort)
	}

	seq, err := p.SortStage(inputPath)
	if err != nil {
		return nil, err
	}
	p.record(StageSort, fp, filepath.Join(p.cfg.Output.Dir, seqStackFile))
	return seq, nil
}

// signalFor reloads the respiration artifact when the stage's cache record
// matches the fingerprint, recomputing otherwise.
func (p *Pipeline) signalFor(fp string, seq *models.SliceSequence) (*models.RespirationSignal, *models.StateAssignment, error) {
	if p.stageDone(StageRespiration, fp) {
		sig, asg, err := p.LoadSignal(seq)
		if err == nil {
			p.log.Info("reusing cached respiration signal")
			return sig, asg, nil
		}
		p.log.Warn("cached signal artifact unusable, recomputing", zap.Error(err))
		p.invalidate(StageRespiration)
	}

	sig, asg, err := p.RespirationStage(seq)
	if err != nil {
		return nil, nil, err
	}
	p.record(StageRespiration, fp, filepath.Join(p.cfg.Output.Dir, signalFile))
	return sig, asg, nil
}

// SortStage reads the 4D acquisition, reorders it into a time-sorted slice
// sequence and writes the sequence artifact.
func (p *Pipeline) SortStage(inputPath string) (*models.SliceSequence, error) {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	img, err := nifti.ReadImage(inputPath)
	if err != nil {
		return nil, err
	}
	seq, err := sequence.ReshapeSweep(img)
	if err != nil {
		return nil, err
	}
	p.log.Info("sorted sweep acquisition",
		zap.Int("slices", len(seq.Slices)),
		zap.Int("width", seq.Width),
		zap.Int("height", seq.Height))

	err = sequence.Save(
		filepath.Join(p.cfg.Output.Dir, seqStackFile),
		filepath.Join(p.cfg.Output.Dir, seqSidecarFile),
		seq)
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// LoadSequence reads the sequence artifact written by a previous SortStage,
// enabling the later stages to run on their own.
func (p *Pipeline) LoadSequence() (*models.SliceSequence, error) {
	return sequence.Load(
		filepath.Join(p.cfg.Output.Dir, seqStackFile),
		filepath.Join(p.cfg.Output.Dir, seqSidecarFile))
}

// RespirationStage estimates the surrogate signal, classifies slices into
// states and writes the signal artifact.
func (p *Pipeline) RespirationStage(seq *models.SliceSequence) (*models.RespirationSignal, *models.StateAssignment, error) {
	estimator := respiration.NewEstimator(respiration.EstimatorOptions{
		SmoothingRadius:   p.cfg.Respiration.SmoothingRadius,
		SampleIntervalSec: p.cfg.Respiration.SampleIntervalSec,
	}, p.log)
	sig, err := estimator.Estimate(seq)
	if err != nil {
		return nil, nil, err
	}

	classifier := respiration.NewClassifier(respiration.ClassifierOptions{
		NStates:        p.cfg.Respiration.NStates,
		DisableCrop:    p.cfg.Respiration.DisableCrop,
		CropPercentile: p.cfg.Respiration.CropPercentile,
	}, p.log)
	asg, err := classifier.Classify(seq, sig)
	if err != nil {
		return nil, nil, err
	}

	if err := saveSignal(filepath.Join(p.cfg.Output.Dir, signalFile), sig, asg); err != nil {
		return nil, nil, err
	}
	return sig, asg, nil
}

// LoadSignal reads the respiration artifact written by a previous
// RespirationStage for the given sequence.
func (p *Pipeline) LoadSignal(seq *models.SliceSequence) (*models.RespirationSignal, *models.StateAssignment, error) {
	return loadSignal(filepath.Join(p.cfg.Output.Dir, signalFile), len(seq.Slices), p.cfg.Respiration.NStates)
}

// ResampleStage reconstructs one volume per state, writes them as NIfTI
// files and renders the QC report.
func (p *Pipeline) ResampleStage(seq *models.SliceSequence, sig *models.RespirationSignal, asg *models.StateAssignment) error {
	resampler, err := resample.New(resample.Options{
		Thickness: p.cfg.Resample.Thickness,
		Method:    p.cfg.Resample.Interpolation,
		Workers:   p.cfg.Resample.Workers,
	}, p.log)
	if err != nil {
		return err
	}

	volumes, stats, err := resampler.Resample(seq, asg)
	if err != nil {
		return err
	}

	for _, vol := range volumes {
		name := filepath.Join(p.cfg.Output.Dir, volumeName(vol.State))
		if err := nifti.WriteVolume(name, vol); err != nil {
			return err
		}
		p.log.Info("wrote state volume",
			zap.Int("state", vol.State),
			zap.Int("nz", vol.Nz),
			zap.String("path", name))
	}

	if stats.RBFFallbacks > 0 || stats.HardFailures > 0 {
		p.log.Warn("resampling recovered numerical conditions",
			zap.Int64("rbfFallbacks", stats.RBFFallbacks),
			zap.Int64("hardFailures", stats.HardFailures))
	}

	if p.cfg.Run.WriteReport {
		dir := filepath.Join(p.cfg.Output.Dir, reportDir)
		if err := report.Write(dir, seq, sig, asg, volumes); err != nil {
			p.log.Warn("QC report generation failed", zap.Error(err))
		}
	}
	return nil
}

// openCache opens the stage cache; cache failures degrade to uncached runs.
func (p *Pipeline) openCache() {
	if p.cache != nil {
		return
	}
	path := p.cfg.Run.CachePath
	if path == "" {
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.cfg.Output.Dir, path)
	}
	cache, err := runcache.Open(path)
	if err != nil {
		p.log.Warn("stage cache unavailable, recomputing everything", zap.Error(err))
		return
	}
	p.cache = cache
	p.log.Debug("stage cache open", zap.String("path", path), zap.String("runID", cache.RunID()))
}

func (p *Pipeline) record(stage, fingerprint, artifact string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Record(stage, fingerprint, artifact); err != nil {
		p.log.Warn("cache record failed", zap.String("stage", stage), zap.Error(err))
	}
}

// stageDone reports whether a completed record for the stage matches the
// fingerprint and its artifact is still on disk.
func (p *Pipeline) stageDone(stage, fingerprint string) bool {
	if p.cache == nil {
		return false
	}
	artifact, ok, err := p.cache.Lookup(stage, fingerprint)
	if err != nil {
		p.log.Warn("cache lookup failed", zap.String("stage", stage), zap.Error(err))
		return false
	}
	return ok && artifactExists(artifact)
}

// volumesExist reports whether every per-state output volume is present. The
// resample record alone is not enough: volumes deleted after a completed run
// must trigger recomputation.
func (p *Pipeline) volumesExist() bool {
	for s := 0; s < p.cfg.Respiration.NStates; s++ {
		if !artifactExists(filepath.Join(p.cfg.Output.Dir, volumeName(s))) {
			return false
		}
	}
	return true
}

func (p *Pipeline) invalidate(stage string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(stage); err != nil {
		p.log.Warn("cache invalidation failed", zap.String("stage", stage), zap.Error(err))
	}
}

// fingerprint digests the input file identity and the stage configuration.
func (p *Pipeline) fingerprint(inputPath string) (string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrInput, inputPath, err)
	}
	cfgBytes, err := yaml.Marshal(p.cfg)
	if err != nil {
		return "", fmt.Errorf("fingerprinting configuration: %w", err)
	}
	return runcache.Fingerprint(
		inputPath,
		info.ModTime().UTC().String(),
		fmt.Sprintf("%d", info.Size()),
		string(cfgBytes),
	), nil
}

// volumeName returns the output filename for a state volume.
func volumeName(state int) string {
	return fmt.Sprintf("state_%02d.nii", state)
}

func artifactExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsFatal reports whether an error belongs to the fatal taxonomy classes
// (configuration or input errors) rather than a recovered condition.
func IsFatal(err error) bool {
	return errors.Is(err, models.ErrConfig) || errors.Is(err, models.ErrInput)
}
