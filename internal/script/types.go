package script

import "fmt"

// Script is an authored, ordered list of scenes. A scene's position in
// Scenes is its step index.
type Script struct {
	Title  string  `json:"title,omitempty" yaml:"title,omitempty"`
	Scenes []Scene `json:"scenes" yaml:"scenes"`
}

// Role is the speaker of a scene.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Scene is one message of the presentation plus optional branching data.
//
// Buttons pause playback until one is chosen; AutoNext redirects without
// touching history; otherwise playback advances linearly.
type Scene struct {
	Role         Role     `json:"role" yaml:"role"`
	Text         string   `json:"text" yaml:"text"`
	ExtraContent string   `json:"extraContent,omitempty" yaml:"extraContent,omitempty"`
	Buttons      []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	AutoNext     *int     `json:"autoNext,omitempty" yaml:"autoNext,omitempty"`
	Notes        string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Sound        string   `json:"sound,omitempty" yaml:"sound,omitempty"`
	Effect       string   `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// Button offers a branch to NextIndex.
type Button struct {
	Label     string `json:"label" yaml:"label"`
	NextIndex int    `json:"nextIndex" yaml:"nextIndex"`
}

// Content is the markup shown for the scene: text followed by extra content.
func (s Scene) Content() string { return s.Text + s.ExtraContent }

// Len returns the number of scenes.
func (s Script) Len() int { return len(s.Scenes) }

// Scene returns the scene at step, or false when step is out of range.
func (s Script) Scene(step int) (Scene, bool) {
	if step < 0 || step >= len(s.Scenes) {
		return Scene{}, false
	}
	return s.Scenes[step], true
}

// Error is a validation failure at a JSON path inside the script document.
type Error struct {
	Field   string
	Message string
}

func (e Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
