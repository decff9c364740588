// Command cryptchats-demo is a small CLI that exercises a cryptchats
// Session pair and renders their ratchet state as it evolves.
package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cryptchats-go/cryptchats"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	msgStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	headStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

func main() {
	root := &cobra.Command{
		Use:   "cryptchats-demo",
		Short: "Exercise a pair of cryptchats sessions and print what happens",
	}
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a scripted two-party conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.OutOrStdout())
		},
	}
}

// runScript walks through the handshake and a sequence of sends,
// some acknowledged immediately, some deliberately left pending, and
// one dropped in flight — the same sequence the protocol's original
// scripted demo ran, and spec.md's scenarios S1-S5 (there is no
// tamper step).
func runScript(out io.Writer) error {
	aliceKey, err := cryptchats.GenerateLongTermKey(rand.Reader)
	if err != nil {
		return err
	}
	bobKey, err := cryptchats.GenerateLongTermKey(rand.Reader)
	if err != nil {
		return err
	}
	alicePub, err := aliceKey.Public()
	if err != nil {
		return err
	}
	bobPub, err := bobKey.Public()
	if err != nil {
		return err
	}

	alice, err := cryptchats.New(aliceKey, bobPub)
	if err != nil {
		return err
	}
	bob, err := cryptchats.New(bobKey, alicePub)
	if err != nil {
		return err
	}

	heading(out, "Handshake")
	frame, err := alice.EncryptInitialKeyx()
	if err != nil {
		return err
	}
	in, err := bob.DecryptMsg(frame)
	if err != nil {
		return err
	}
	if in.Keyx == nil {
		return fmt.Errorf("bob did not produce an acknowledgement")
	}
	if _, err := alice.DecryptMsg(in.Keyx); err != nil {
		return err
	}
	printState(out, "alice", alice)
	printState(out, "bob", bob)

	heading(out, "Alice -> Bob, acknowledged")
	if err := send(out, alice, bob, "ayy lmao", true); err != nil {
		return err
	}

	heading(out, "Alice -> Bob, Bob forgets to acknowledge")
	if err := send(out, alice, bob, "ayy lmao", false); err != nil {
		return err
	}

	heading(out, "Alice -> Bob, Bob still decrypts after the dropped acknowledgement")
	if err := send(out, alice, bob, "ayy lmao", true); err != nil {
		return err
	}

	heading(out, "Alice -> Bob, the frame never arrives")
	if _, err := alice.EncryptMsg([]byte("lost in transit")); err != nil {
		return err
	}

	heading(out, "Alice -> Bob, a later send catches up")
	if err := send(out, alice, bob, "still there?", true); err != nil {
		return err
	}

	heading(out, "Bob -> Alice")
	if err := send(out, bob, alice, "ayy :)", true); err != nil {
		return err
	}

	return nil
}

func send(out io.Writer, from, to *cryptchats.Session, plaintext string, ack bool) error {
	frame, err := from.EncryptMsg([]byte(plaintext))
	if err != nil {
		return err
	}
	if frame == nil {
		fmt.Fprintln(out, msgStyle.Render("(buffered, ratchet not yet caught up)"))
		return nil
	}

	in, err := to.DecryptMsg(frame)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("plaintext:"), msgStyle.Render(string(in.Plaintext)))

	if ack && in.Keyx != nil {
		if _, err := from.DecryptMsg(in.Keyx); err != nil {
			return err
		}
	}
	return nil
}

func heading(out io.Writer, title string) {
	fmt.Fprintln(out, headStyle.Render(title))
}

func printState(out io.Writer, who string, s *cryptchats.Session) {
	st, err := s.DebugState()
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", who, err)
		return
	}
	fmt.Fprintf(out, "%s established=%v initiator=%v send_peer=%s receive_peer=%s\n",
		labelStyle.Render(who),
		st.Established, st.IsInitiator,
		keyStyle.Render(shortHex(st.SendPeerEphemeral)),
		keyStyle.Render(shortHex(st.ReceivePeerEphemeral)),
	)
}

func shortHex(b *[32]byte) string {
	if b == nil {
		return "<none>"
	}
	return fmt.Sprintf("%x", b[:4])
}
