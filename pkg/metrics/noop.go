package metrics

import "FinFeed/internal/domain/models"

// Noop discards every measurement. Used by tests.
type Noop struct{}

func (Noop) RecordProviderCall(string, models.Operation, string, float64) {}
func (Noop) RecordFallback(models.Operation, string)                      {}
func (Noop) RecordStaleServed(models.Operation)                           {}
func (Noop) RecordCache(models.Operation, bool)                           {}
func (Noop) SetActiveLoops(int)                                           {}
func (Noop) SetSubscribers(string, int)                                   {}
func (Noop) RecordConnection(bool)                                        {}
func (Noop) RecordMessageSent(string, string)                             {}
func (Noop) RecordError(string)                                           {}
func (Noop) RecordLastPrice(string, float64)                              {}
func (Noop) RecordLatency(string, float64)                                {}
