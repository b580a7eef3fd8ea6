package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	qrcode "github.com/skip2/go-qrcode"

	"minigames/internal/app"
	"minigames/internal/bot"
	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/realtime"
	"minigames/internal/session"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional config file; env vars override")
		room       = flag.String("room", "", "room code to join; empty with -create generates one")
		name       = flag.String("name", "player", "display name")
		game       = flag.String("game", "redlight", "game type: redlight or tug")
		create     = flag.Bool("create", false, "create the room and claim host")
		runBot     = flag.Bool("bot", false, "run an automated player instead of the prompt")
		relayURL   = flag.String("relay", "", "relay websocket URL override")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := log.New(os.Stderr, "minigame ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}

	gameType := domain.GameRedLightGreenLight
	if *game == "tug" {
		gameType = domain.GameTugOfWar
	}

	code := domain.NormalizeRoomCode(*room)
	if code == "" {
		if !*create {
			logger.Fatalf("pass -room CODE, or -create to open a new room")
		}
		code = domain.NewRoomCode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := &realtime.Dialer{URL: cfg.RelayURL, Logger: logger}
	svc := app.NewService(dialer, cfg, logger)
	defer svc.Close()

	if err := svc.Join(ctx, code, *name, gameType, *create); err != nil {
		logger.Fatalf("join room %s: %v", code, err)
	}
	fmt.Printf("room %s as %q\n", code, *name)
	if *create {
		printJoinQR(logger, code)
	}

	offs := watchEvents(svc.Session())
	defer func() {
		for _, off := range offs {
			off()
		}
	}()

	if *runBot {
		agent := bot.New(svc.Session(), bot.Config{Game: gameType})
		defer agent.Close()
		agent.Run(ctx)
		return
	}

	runPrompt(ctx, svc, logger)
}

// watchEvents prints the room activity a player would see on screen.
func watchEvents(sess *session.Manager) []func() {
	return []func(){
		sess.On(session.EventGameStateChanged, func(ev session.Event) {
			state, ok := ev.Payload.(session.GameStatePayload)
			if !ok {
				return
			}
			switch {
			case state.Countdown != nil && *state.Countdown > 0:
				fmt.Printf("starting in %d...\n", *state.Countdown)
			case state.Ended != nil && *state.Ended:
				if len(state.Winners) == 0 {
					fmt.Println("round over, no winners")
				} else {
					fmt.Printf("round over, winners: %s\n", strings.Join(state.Winners, ", "))
				}
			case state.LightState != "":
				fmt.Printf("light: %s\n", state.LightState)
			}
		}),
		sess.On(session.EventPlayerEliminated, func(ev session.Event) {
			if p, ok := ev.Payload.(session.EliminatedPayload); ok {
				fmt.Printf("%s is out\n", p.PlayerID)
			}
		}),
		sess.On(session.EventHostChanged, func(ev session.Event) {
			if p, ok := ev.Payload.(session.HostChangePayload); ok {
				fmt.Printf("host is now %s\n", p.HostID)
			}
		}),
		sess.On(session.EventRopeChanged, func(ev session.Event) {
			if p, ok := ev.Payload.(session.RopePayload); ok {
				fmt.Printf("rope: %s\n", p.RopePosition)
			}
		}),
	}
}

func runPrompt(ctx context.Context, svc *app.Service, logger *log.Logger) {
	fmt.Println("commands: start, reset, move X Z, pull, release, quit")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "start":
				if err := svc.StartGame(); err != nil {
					logger.Printf("start: %v", err)
				}
			case "reset":
				if err := svc.ResetGame(); err != nil {
					logger.Printf("reset: %v", err)
				}
			case "move":
				if len(fields) != 3 {
					logger.Printf("usage: move X Z")
					continue
				}
				x, errX := strconv.ParseFloat(fields[1], 64)
				z, errZ := strconv.ParseFloat(fields[2], 64)
				if errX != nil || errZ != nil {
					logger.Printf("usage: move X Z")
					continue
				}
				svc.ObserveFrame(x, z)
			case "pull":
				svc.PullFrame(true)
			case "release":
				svc.PullFrame(false)
			case "quit":
				return
			default:
				logger.Printf("unknown command %q", fields[0])
			}
		}
	}
}

// printJoinQR renders the room code as a terminal QR so phones can join.
func printJoinQR(logger *log.Logger, code string) {
	qr, err := qrcode.New("minigames://join/"+code, qrcode.Medium)
	if err != nil {
		logger.Printf("join QR: %v", err)
		return
	}
	fmt.Print(qr.ToSmallString(false))
}
