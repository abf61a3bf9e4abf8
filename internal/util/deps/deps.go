package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// FindTool returns the path to a binary. If customPath is non-empty, it tries
// that path or looks it up in PATH; otherwise each fallback name is looked up.
func FindTool(customPath string, fallbacks ...string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find %q", customPath)
	}
	for _, name := range fallbacks {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find %s in PATH", strings.Join(fallbacks, " or "))
}

// FindFFmpeg returns the path to the ffmpeg binary.
func FindFFmpeg(customPath string) (string, error) {
	p, err := FindTool(customPath, "ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%v. Please install ffmpeg", err)
	}
	return p, nil
}

// FindFFprobe returns the path to the ffprobe binary.
func FindFFprobe(customPath string) (string, error) {
	p, err := FindTool(customPath, "ffprobe")
	if err != nil {
		return "", fmt.Errorf("%v. Please install ffmpeg (ffprobe ships with it)", err)
	}
	return p, nil
}

// CommandBinary returns the executable of a command template such as
// "rife-ncnn-vulkan -0 {before} ...", resolved in PATH.
func CommandBinary(template string) (string, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command template")
	}
	return FindTool(fields[0])
}
