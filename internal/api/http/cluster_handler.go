package http

import (
	"net/http"

	"periodic-engine/internal/domain"
)

// ClusterView is the response of GET /nodes.
type ClusterView struct {
	Self   string        `json:"self"`
	Leader bool          `json:"leader"`
	Nodes  []domain.Node `json:"nodes"`
}

// ClusterHandler reports the engine nodes and whether this one fires
// scheduled jobs.
type ClusterHandler struct {
	nodeID     string
	membership domain.Membership
	leader     domain.LeaderElectionManager
}

func NewClusterHandler(nodeID string, membership domain.Membership, leader domain.LeaderElectionManager) *ClusterHandler {
	return &ClusterHandler{nodeID: nodeID, membership: membership, leader: leader}
}

// RegisterRoutes registers GET /nodes.
func (h *ClusterHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ClusterView{
			Self:   h.nodeID,
			Leader: h.leader.IsLeader(),
			Nodes:  h.membership.Nodes(),
		})
	})
}
