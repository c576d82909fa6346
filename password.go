package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emmansun/gmsm/sm3"
	"golang.org/x/term"
)

// The portal's login form hashes the password with SM3 in the browser and
// posts the lowercase hex digest in place of the plaintext.
const digestHexLen = 64

// passwordDigest returns the lowercase hex SM3 digest of password.
func passwordDigest(password string) string {
	h := sm3.New()
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}

// validDigest reports whether s looks like an SM3 hex digest.
func validDigest(s string) bool {
	if len(s) != digestHexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// readPassword reads a password from stdin. On a terminal the input is not
// echoed; otherwise the first line is used as-is.
func readPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
