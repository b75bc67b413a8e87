package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one imported experiment log.
type RunRecord struct {
	VersionedRecord
	ID              string  `json:"id"`
	Source          string  `json:"source"`
	Kind            string  `json:"kind"`
	EpisodeCount    int     `json:"episode_count"`
	ChannelCount    int     `json:"channel_count"`
	StepsPerEpisode int     `json:"steps_per_episode"`
	NetworkCount    int     `json:"network_count,omitempty"`
	EpisodeNumbers  []int   `json:"episode_numbers"`
	BestFitness     float64 `json:"best_fitness,omitempty"`
	CreatedAtUTC    string  `json:"created_at_utc"`
}

// ChannelTrace is the plotted curve of one servo channel: the concatenated
// samples of a random run, or the best network of each generation.
type ChannelTrace struct {
	ChannelID int       `json:"channel_id"`
	Values    []float64 `json:"values"`
}
