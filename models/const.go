package models

// ============================================================
// MEDIA CONSTANTS
// ============================================================

const (
	MIMETypeWebM            = "video/webm"
	DefaultArtifactFilename = "face-tracking-video.webm"
)

// ============================================================
// RENDER MODES
// ============================================================

const (
	RenderModeMarkers = "markers"
	RenderModeMesh    = "mesh"
)

// ============================================================
// LANDMARK LAYOUTS
// ============================================================

const (
	LayoutXY  = "xy"
	LayoutXYZ = "xyz"
)

// ============================================================
// SIGNALING MESSAGE TYPES
// ============================================================

const (
	SignalRegister     = "register"
	SignalRegistered   = "registered"
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalQuit         = "quit"
	SignalPing         = "ping"
	SignalPong         = "pong"
	SignalError        = "error"
)
