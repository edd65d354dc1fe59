// Command client is a terminal chat client for relayd.
//
// After the login/register handshake it relays stdin lines to the
// server and prints whatever other clients send. Incoming files land
// in the files directory, images in the images directory.
//
// Commands:
//
//	.file <path>   send a file
//	.image <path>  send an image
//	.quit          disconnect and exit
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaychat/relayd/pkg/logging"
	"github.com/relaychat/relayd/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11111", "Server address")
	filesDir := flag.String("files", "files", "Directory for received files")
	imagesDir := flag.String("images", "images", "Directory for received images")
	logLevel := flag.String("log-level", "warn", "Log level: "+logging.LevelNames())
	flag.Parse()

	if err := logging.Setup(logging.Options{Level: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := run(*addr, *filesDir, *imagesDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, filesDir, imagesDir string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	r := protocol.NewReader(conn, 0)
	w := protocol.NewWriter(conn, 0)
	stdin := bufio.NewScanner(os.Stdin)

	if err := authenticate(stdin, r, w); err != nil {
		return err
	}
	fmt.Println("connected. type a message, or .file/.image/.quit")

	// Receive loop; ends when the server closes the connection.
	recvDone := make(chan error, 1)
	go func() { recvDone <- receive(r, filesDir, imagesDir) }()

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
			continue

		case line == ".quit":
			_ = w.WriteFrame(protocol.DisconnectFrame())
			return nil

		case strings.HasPrefix(line, ".file "):
			if err := sendAttachment(w, strings.TrimSpace(line[len(".file "):]), protocol.FileFrame); err != nil {
				fmt.Fprintf(os.Stderr, "send file: %v\n", err)
			}

		case strings.HasPrefix(line, ".image "):
			if err := sendAttachment(w, strings.TrimSpace(line[len(".image "):]), protocol.ImageFrame); err != nil {
				fmt.Fprintf(os.Stderr, "send image: %v\n", err)
			}

		default:
			if err := w.WriteFrame(protocol.TextFrame(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}

		// Bail out if the server hung up while we were typing.
		select {
		case err := <-recvDone:
			return err
		default:
		}
	}
	return stdin.Err()
}

// authenticate prompts for credentials and performs the handshake.
func authenticate(stdin *bufio.Scanner, r *protocol.Reader, w *protocol.Writer) error {
	register := prompt(stdin, "login or register? [l/r]: ") == "r"
	username := prompt(stdin, "username: ")
	password := prompt(stdin, "password: ")

	if err := w.WriteFrame(protocol.AuthRequestFrame(register, username, password)); err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}

	result, err := r.ReadFrame()
	if err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if result.Tag != protocol.TagAuthResult {
		return fmt.Errorf("unexpected server reply (tag %v)", result.Tag)
	}
	if !result.OK {
		return fmt.Errorf("authentication rejected: %s", result.Reason)
	}
	return nil
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

// receive prints incoming frames until the connection drops.
func receive(r *protocol.Reader, filesDir, imagesDir string) error {
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("server closed the connection")
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch frame.Tag {
		case protocol.TagText:
			fmt.Println(frame.Text)

		case protocol.TagFile:
			path, err := saveAttachment(filesDir, frame.Name, frame.Data)
			if err != nil {
				slog.Error("save file", "name", frame.Name, "err", err)
				continue
			}
			fmt.Printf("received file: %s\n", path)

		case protocol.TagImage:
			path, err := saveAttachment(imagesDir, frame.Name, frame.Data)
			if err != nil {
				slog.Error("save image", "name", frame.Name, "err", err)
				continue
			}
			fmt.Printf("received image: %s\n", path)

		default:
			slog.Warn("ignoring unexpected frame", "tag", frame.Tag)
		}
	}
}

// sendAttachment reads path and ships it with the given frame
// constructor. Only the base name crosses the wire.
func sendAttachment(w *protocol.Writer, path string, frame func(string, []byte) protocol.Frame) error {
	if path == "" {
		return errors.New("missing path")
	}
	data, err := os.ReadFile(path) //nolint:gosec // path typed by the local user
	if err != nil {
		return err
	}
	return w.WriteFrame(frame(filepath.Base(path), data))
}

// saveAttachment writes data under dir. The sender-supplied name is
// reduced to its base name so it cannot escape the directory.
func saveAttachment(dir, name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "unnamed"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
