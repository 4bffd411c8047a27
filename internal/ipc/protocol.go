package ipc

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool              `json:"ok"`
	State   string            `json:"state,omitempty"`
	Message string            `json:"message,omitempty"`
	Detail  map[string]string `json:"detail,omitempty"`
	Error   string            `json:"error,omitempty"`
}
