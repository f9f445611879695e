package gormstorage

import (
	"fmt"

	"github.com/OCAP2/multicopter/internal/model"
	"github.com/OCAP2/multicopter/internal/model/convert"
	"github.com/OCAP2/multicopter/pkg/core"
)

// Reads skip the geometry columns: the local frame columns are authoritative
// and scanning WKB back is not needed for a replay.

// Vehicles reads back the vehicles of the current run ordered by ID.
func (b *Backend) Vehicles() ([]core.VehicleInfo, error) {
	runID := b.RunID()
	if runID == 0 {
		return nil, ErrNoRun
	}
	var rows []model.Vehicle
	err := b.deps.DB.Omit("spawn").Where("run_id = ?", runID).Order("object_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reading vehicles: %w", err)
	}
	out := make([]core.VehicleInfo, len(rows))
	for i := range rows {
		out[i] = convert.VehicleToCore(rows[i])
	}
	return out, nil
}

// VehicleSamples reads back the flushed samples of one vehicle in tick order.
func (b *Backend) VehicleSamples(id uint16) ([]core.VehicleSample, error) {
	runID := b.RunID()
	if runID == 0 {
		return nil, ErrNoRun
	}
	var rows []model.VehicleSample
	err := b.deps.DB.Omit("position").
		Where("run_id = ? AND vehicle_object_id = ?", runID, id).
		Order("tick").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reading samples of vehicle %d: %w", id, err)
	}
	out := make([]core.VehicleSample, len(rows))
	for i := range rows {
		out[i] = convert.VehicleSampleToCore(rows[i])
	}
	return out, nil
}

// TickFaults reads back the flushed faults of the current run in tick order.
func (b *Backend) TickFaults() ([]core.TickFault, error) {
	runID := b.RunID()
	if runID == 0 {
		return nil, ErrNoRun
	}
	var rows []model.TickFault
	if err := b.deps.DB.Where("run_id = ?", runID).Order("tick, vehicle_object_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading tick faults: %w", err)
	}
	out := make([]core.TickFault, len(rows))
	for i := range rows {
		out[i] = convert.TickFaultToCore(rows[i])
	}
	return out, nil
}
