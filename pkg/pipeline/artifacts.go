package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"sweepvol/internal/models"
)

// saveSignal writes the respiration signal and state assignment as a CSV
// artifact, one row per slice in acquisition order.
func saveSignal(path string, sig *models.RespirationSignal, asg *models.StateAssignment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating signal artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"acq_index", "raw", "filtered", "state"}); err != nil {
		return err
	}
	for i, pt := range sig.Points {
		rec := []string{
			strconv.Itoa(pt.AcqIndex),
			strconv.FormatFloat(pt.Raw, 'g', -1, 64),
			strconv.FormatFloat(pt.Filtered, 'g', -1, 64),
			strconv.Itoa(asg.States[i]),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// loadSignal reads a signal artifact back, validating it against the
// sequence length and the configured state count.
func loadSignal(path string, sliceCount, nStates int) (*models.RespirationSignal, *models.StateAssignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening signal artifact: %v", models.ErrInput, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading signal artifact: %v", models.ErrInput, err)
	}
	if len(records) < 1 {
		return nil, nil, fmt.Errorf("%w: empty signal artifact", models.ErrInput)
	}
	records = records[1:] // header

	if len(records) != sliceCount {
		return nil, nil, fmt.Errorf("%w: signal artifact has %d rows but sequence holds %d slices",
			models.ErrInput, len(records), sliceCount)
	}

	sig := &models.RespirationSignal{Points: make([]models.SignalPoint, len(records))}
	asg := &models.StateAssignment{NStates: nStates, States: make([]int, len(records))}
	for i, rec := range records {
		if len(rec) < 4 {
			return nil, nil, fmt.Errorf("%w: malformed signal row %d", models.ErrInput, i+1)
		}
		acq, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad acquisition index in row %d: %v", models.ErrInput, i+1, err)
		}
		raw, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad raw value in row %d: %v", models.ErrInput, i+1, err)
		}
		filtered, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad filtered value in row %d: %v", models.ErrInput, i+1, err)
		}
		state, err := strconv.Atoi(rec[3])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad state in row %d: %v", models.ErrInput, i+1, err)
		}
		if state != models.StateUnset && (state < 0 || state >= nStates) {
			return nil, nil, fmt.Errorf("%w: state %d in row %d outside configured range of %d states",
				models.ErrConfig, state, i+1, nStates)
		}
		sig.Points[i] = models.SignalPoint{AcqIndex: acq, Raw: raw, Filtered: filtered}
		asg.States[i] = state
	}

	return sig, asg, nil
}
