package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/danferreira/metapeer/internal/bencode"
	"github.com/danferreira/metapeer/internal/metadata"
	"github.com/danferreira/metapeer/internal/peer"
	"github.com/danferreira/metapeer/internal/torrent"
)

const usage = `usage: gtorrent [flags] <command> [args]

commands:
  decode <bencoded value>      print a bencoded value as JSON
  info <file.torrent>          print tracker, length, info hash and piece hashes
  peers <file.torrent>         announce to the tracker and print the peer list
  handshake <file.torrent> <host:port>
                               handshake with one peer and print its peer id
  handshake <file.torrent>     handshake with the first peer that answers

flags:
`

func main() {
	port := flag.Int("port", 6881, "The port reported to the tracker")
	peerID := flag.String("peer-id", "", "The 20-byte peer id (random when empty)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := torrent.NewDefaultConfig()
	cfg.ListenPort = *port
	if *peerID != "" {
		id, err := peer.ParsePeerID(*peerID)
		if err != nil {
			log.Fatal(err)
		}
		cfg.PeerID = id
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch args[0] {
	case "decode":
		err = decode(args[1])
	case "info":
		err = info(args[1])
	case "peers":
		err = peers(ctx, cfg, args[1])
	case "handshake":
		err = shake(ctx, cfg, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func decode(input string) error {
	v, err := bencode.DecodeBytes([]byte(input))
	if err != nil {
		return err
	}

	out, err := json.Marshal(bencode.Interface(v))
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}

func info(path string) error {
	m, err := metadata.ParseFile(path)
	if err != nil {
		return err
	}

	infoHash, err := m.InfoHash()
	if err != nil {
		return err
	}

	fmt.Printf("Tracker URL: %s\n", m.Announce)
	fmt.Printf("Length: %d\n", m.Info.Length)
	fmt.Printf("Info Hash: %s\n", metadata.HexHash(infoHash))
	fmt.Printf("Piece Length: %d\n", m.Info.PieceLength)
	fmt.Println("Piece Hashes:")
	for _, p := range m.Info.Pieces {
		fmt.Println(metadata.HexHash(p))
	}

	if err := m.Info.Validate(); err != nil {
		slog.Warn("torrent does not validate", "error", err)
	}
	return nil
}

func load(cfg torrent.Config, path string) (*torrent.Torrent, error) {
	c, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return c.Load(path)
}

func peers(ctx context.Context, cfg torrent.Config, path string) error {
	t, err := load(cfg, path)
	if err != nil {
		return err
	}

	resp, err := t.Peers(ctx)
	if err != nil {
		return err
	}

	for _, p := range resp.Peers {
		fmt.Println(p.Addr())
	}
	return nil
}

func shake(ctx context.Context, cfg torrent.Config, args []string) error {
	t, err := load(cfg, args[0])
	if err != nil {
		return err
	}

	if len(args) > 1 {
		conn, remoteID, err := t.ConnectAddr(ctx, args[1])
		if err != nil {
			return err
		}
		defer conn.Close()

		fmt.Printf("Peer ID: %x\n", remoteID)
		return nil
	}

	conn, p, remoteID, err := t.ConnectAny(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Peer: %s\n", p.Addr())
	fmt.Printf("Peer ID: %x\n", remoteID)
	return nil
}
