package collection

// Pipeline is an Archivematica pipeline as returned by the pipeline service.
type Pipeline struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Capacity *int64 `json:"capacity,omitempty"`
	Current  *int64 `json:"current,omitempty"`
	Status   string `json:"status,omitempty"`
}
