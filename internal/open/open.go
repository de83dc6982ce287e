package open

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CommLog opens the comm.log at path in $EDITOR, positioned at lineNum
// (1-based). Falls back to less when no editor is set.
func CommLog(path string, lineNum int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if lineNum < 1 {
		lineNum = 1
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "less"
	}

	return openInEditor(editor, path, lineNum)
}

func openInEditor(editor, filePath string, lineNum int) error {
	var cmd *exec.Cmd

	switch {
	case strings.Contains(editor, "vim") || strings.Contains(editor, "nvim"):
		cmd = exec.Command(editor, fmt.Sprintf("+%d", lineNum), filePath)
	case strings.Contains(editor, "code"):
		cmd = exec.Command(editor, "--goto", filePath+":"+strconv.Itoa(lineNum))
	case strings.Contains(editor, "less"):
		cmd = exec.Command(editor, "+"+strconv.Itoa(lineNum), filePath)
	default:
		cmd = exec.Command(editor, filePath)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
