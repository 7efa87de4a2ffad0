package common

// Key is a keyboard key code. Values match GLFW key codes, which use ASCII for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
type Key uint32

const (
	KeyW Key = 87
	KeyA Key = 65
	KeyS Key = 83
	KeyD Key = 68
	KeyQ Key = 81
	KeyE Key = 69
	KeyR Key = 82
	KeyP Key = 80
	KeyV Key = 86

	KeySpace     Key = 32
	KeyEsc       Key = 256
	KeyBackspace Key = 259
	KeyRight     Key = 262
	KeyLeft      Key = 263
	KeyDown      Key = 264
	KeyUp        Key = 265

	KeyLeftShift  Key = 340
	KeyRightShift Key = 344
)
