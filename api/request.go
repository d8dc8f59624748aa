package api

// LaunchReq is a request to launch and supervise one acquisition run.
type LaunchReq struct {
	RunUuid string `json:"run_uuid"`

	Experiment string   `json:"experiment"`
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	WorkDir    string   `json:"work_dir"`

	MemLimKiB int64 `json:"mem_lim_kib"`
	TimeoutMs int64 `json:"timeout_ms"`
	PollMs    int64 `json:"poll_ms"`

	// Engine-mode runs participate in the crash-resume handshake.
	Engine             bool   `json:"engine"`
	ChannelDir         string `json:"channel_dir"`
	MaxResumeAttempts  int    `json:"max_resume_attempts"`
	ReconnectTimeoutMs int64  `json:"reconnect_timeout_ms"`

	ResQueueUrl string `json:"res_queue_url"`
}
