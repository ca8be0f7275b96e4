package usecases

import "stresstest-server/entities"

// Stats are fleet-wide counts; pending records make up the remainder of Total.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Aggregate counts records by status. Callers pass the unfiltered set.
func Aggregate(records []entities.DeviceTest) Stats {
	var s Stats
	s.Total = len(records)
	for _, r := range records {
		switch r.Status {
		case entities.StatusRunning:
			s.Running++
		case entities.StatusCompleted:
			s.Completed++
		case entities.StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}
