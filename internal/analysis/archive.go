package analysis

import (
	"fmt"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	hdf5 "github.com/sbinet/go-hdf5/pkg/hdf5"
)

// writeResultsArchive writes analysis_results.h5: azimuth_map,
// elevation_map, magnitude_{DIR}, phase_{DIR}, sign_map (all float32),
// and area_map (int32).
func writeResultsArchive(path string, r Result) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	if r.Azimuth != nil {
		if err := writeFloat32Dataset(f, "azimuth_map", r.Azimuth, r.Height, r.Width); err != nil {
			return fmt.Errorf("writing azimuth_map: %w", err)
		}
	}
	if r.Elevation != nil {
		if err := writeFloat32Dataset(f, "elevation_map", r.Elevation, r.Height, r.Width); err != nil {
			return fmt.Errorf("writing elevation_map: %w", err)
		}
	}
	for _, d := range config.AllDirections {
		if mag, ok := r.Magnitude[d]; ok {
			if err := writeFloat32Dataset(f, "magnitude_"+string(d), mag, r.Height, r.Width); err != nil {
				return fmt.Errorf("writing magnitude_%s: %w", d, err)
			}
		}
		if ph, ok := r.Phase[d]; ok {
			if err := writeFloat32Dataset(f, "phase_"+string(d), ph, r.Height, r.Width); err != nil {
				return fmt.Errorf("writing phase_%s: %w", d, err)
			}
		}
	}
	if r.Sign != nil {
		signF := make([]float64, len(r.Sign))
		for i, v := range r.Sign {
			signF[i] = float64(v)
		}
		if err := writeFloat32Dataset(f, "sign_map", signF, r.Height, r.Width); err != nil {
			return fmt.Errorf("writing sign_map: %w", err)
		}
	}
	if r.AreaMap != nil {
		if err := writeInt32Dataset(f, "area_map", r.AreaMap, r.Height, r.Width); err != nil {
			return fmt.Errorf("writing area_map: %w", err)
		}
	}
	return nil
}

func writeFloat32Dataset(f *hdf5.File, name string, data []float64, h, w int) error {
	buf := make([]float32, len(data))
	for i, v := range data {
		buf[i] = float32(v)
	}
	space, err := hdf5.NewDataspaceSimple([]uint{uint(h), uint(w)}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := f.CreateDataset(name, hdf5.T_NATIVE_FLOAT, space)
	if err != nil {
		return err
	}
	defer ds.Close()
	return ds.Write(&buf[0])
}

func writeInt32Dataset(f *hdf5.File, name string, data []int32, h, w int) error {
	space, err := hdf5.NewDataspaceSimple([]uint{uint(h), uint(w)}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := f.CreateDataset(name, hdf5.T_NATIVE_INT, space)
	if err != nil {
		return err
	}
	defer ds.Close()
	return ds.Write(&data[0])
}
