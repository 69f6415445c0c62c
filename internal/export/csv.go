package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/sim"
)

// Header is the column layout of trajectory CSV files.
var Header = []string{"time", "R", "Q", "X", "rho", "mu", "mass", "log10X", "dilution", "segment"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes one row per sample. log10X is left empty where X <= 0.
func WriteCSV(w io.Writer, tr *sim.Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	row := make([]string, len(Header))
	for _, p := range tr.Points {
		row[0] = formatFloat(p.T)
		row[1] = formatFloat(p.R)
		row[2] = formatFloat(p.Q)
		row[3] = formatFloat(p.X)
		row[4] = formatFloat(p.Rho)
		row[5] = formatFloat(p.Mu)
		row[6] = formatFloat(p.Mass)
		if lx, err := p.Log10X(); err == nil {
			row[7] = formatFloat(lx)
		} else {
			row[7] = ""
		}
		row[8] = formatFloat(p.Dilution)
		row[9] = strconv.Itoa(p.Segment)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV back into samples. The derived
// log10X column is ignored.
func ReadCSV(r io.Reader) ([]sim.Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, fmt.Errorf("export: column %d is %q, want %q", i, header[i], name)
		}
	}

	var points []sim.Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}

		var vals [7]float64
		for i := range vals {
			vals[i], err = strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("export: line %d, %s: %w", line, Header[i], err)
			}
		}
		dilution, err := strconv.ParseFloat(rec[8], 64)
		if err != nil {
			return nil, fmt.Errorf("export: line %d, dilution: %w", line, err)
		}
		segment, err := strconv.Atoi(rec[9])
		if err != nil {
			return nil, fmt.Errorf("export: line %d, segment: %w", line, err)
		}

		points = append(points, sim.Point{
			T:        vals[0],
			R:        vals[1],
			Q:        vals[2],
			X:        vals[3],
			Rho:      vals[4],
			Mu:       vals[5],
			Mass:     vals[6],
			Dilution: dilution,
			Segment:  segment,
		})
	}
	return points, nil
}

// ReadTrajectory reads a CSV trajectory and recovers its dilution
// boundaries from the segment column. The regime is only known to be
// semi-continuous when boundaries are present.
func ReadTrajectory(r io.Reader) (*sim.Trajectory, error) {
	points, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	tr := &sim.Trajectory{Points: points}
	for i := 1; i < len(points); i++ {
		if points[i].Segment == points[i-1].Segment {
			continue
		}
		retained := 0.0
		if points[i-1].X > 0 {
			retained = points[i].X / points[i-1].X
		}
		tr.Boundaries = append(tr.Boundaries, sim.Boundary{Index: i, T: points[i].T, Retained: retained})
	}
	if len(tr.Boundaries) > 0 {
		tr.Regime = control.RegimeSemiContinuous
	}
	return tr, nil
}
