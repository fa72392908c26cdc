package service

import "github.com/evimparca-cloud/stock-sub001/internal/models"

// remoteStatusTable is the single canonical mapping from marketplace
// status vocabulary to the local status enum. Every call site that
// needs to interpret a marketplace status goes through this table.
var remoteStatusTable = map[string]models.Status{
	"Created":           models.StatusPending,
	"Awaiting":          models.StatusPending,
	"UnDelivered":       models.StatusPending,
	"Picking":           models.StatusProcessing,
	"Invoiced":          models.StatusProcessing,
	"UnPacked":          models.StatusProcessing,
	"Shipped":           models.StatusShipped,
	"AtCollectionPoint": models.StatusShipped,
	"Delivered":         models.StatusDelivered,
	"Cancelled":         models.StatusCancelled,
	"UnSupplied":        models.StatusCancelled,
	"Returned":          models.StatusRefunded,
}

// LookupStatus maps a marketplace status string to the canonical enum.
// The second return reports whether the vocabulary knows the status.
func LookupStatus(remote string) (models.Status, bool) {
	s, ok := remoteStatusTable[remote]
	return s, ok
}

// StatusFromRemote maps a marketplace status string to the canonical
// enum, defaulting unknown vocabulary to PENDING.
func StatusFromRemote(remote string) models.Status {
	if s, ok := remoteStatusTable[remote]; ok {
		return s
	}
	return models.StatusPending
}
