package connector

// ConnectionStats represents database connection pool statistics.
type ConnectionStats struct {
	Pools           int `json:"pools"`
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

// Add sums two snapshots.
func (s ConnectionStats) Add(o ConnectionStats) ConnectionStats {
	return ConnectionStats{
		Pools:           s.Pools + o.Pools,
		OpenConnections: s.OpenConnections + o.OpenConnections,
		InUse:           s.InUse + o.InUse,
		Idle:            s.Idle + o.Idle,
	}
}
