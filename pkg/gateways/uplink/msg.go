package uplink

import "github.com/janael-pinheiro/trap-module-golang/pkg/entities"

type Category string

const (
	CategorySetting Category = "setting"
	CategoryPeriod  Category = "period"
	CategoryTest    Category = "test"
)

// Report is the status document a parent delivers once per cycle.
type Report struct {
	ID          string               `json:"id"`
	Category    Category             `json:"category"`
	ParentID    uint32               `json:"parent_id"`
	CurrentTime int64                `json:"current_time"`
	WakeTime    int64                `json:"wake_time"`
	Lat         string               `json:"lat"`
	Lon         string               `json:"lon"`
	ActiveStart int                  `json:"active_start"`
	ActiveEnd   int                  `json:"active_end"`
	Modules     []entities.PeerState `json:"modules"`
}

// InMsg is a document consumed from the collector broker.
type InMsg struct {
	RoutingKey string
	Body       []byte
}
