package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"event-invitations/internal/checkin"
	"event-invitations/internal/handler"
	"event-invitations/internal/layout"
	"event-invitations/internal/models"
	"event-invitations/internal/viewport"
)

// editorViewport is the display area of the terminal layout editor.
var editorViewport = viewport.Size{W: 1000, H: 800}

const followInterval = 500 * time.Millisecond

func (a *app) run(ctx context.Context) {
	for {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Add event")
		fmt.Println("  2. Add guest")
		fmt.Println("  3. List guests")
		fmt.Println("  4. Generate invitations")
		fmt.Println("  5. Scan image file")
		fmt.Println("  6. Scan folder continuously")
		fmt.Println("  7. Show statistics")
		fmt.Println("  8. Send invitations")
		fmt.Println("  9. Serve door API")
		fmt.Println(" 10. Reset scan session")
		fmt.Println(" 11. Set event template")
		fmt.Println(" 12. Check template layout")
		fmt.Println(" 13. Edit layout")
		fmt.Println("  0. Exit")

		command, ok := a.prompt("\nEnter command: ")
		if !ok {
			return
		}

		var err error
		switch command {
		case "1":
			err = a.addEvent(ctx)
		case "2":
			err = a.addGuest(ctx)
		case "3":
			err = a.listGuests(ctx)
		case "4":
			err = a.generate(ctx)
		case "5":
			err = a.scanFile(ctx)
		case "6":
			err = a.scanFolder(ctx)
		case "7":
			err = a.statistics(ctx)
		case "8":
			err = a.sendInvitations(ctx)
		case "9":
			err = a.serve(ctx)
		case "10":
			a.validator.Reset()
			fmt.Println("Scan session reset.")
		case "11":
			err = a.setTemplate(ctx)
		case "12":
			err = a.checkLayout(ctx)
		case "13":
			err = a.editLayout(ctx)
		case "0":
			fmt.Println("Exiting...")
			return
		default:
			fmt.Println("Invalid command. Please try again.")
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func (a *app) prompt(label string) (string, bool) {
	fmt.Print(label)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

func (a *app) promptInt(label string, def int) (int, error) {
	s, _ := a.prompt(label)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

// chooseEvent asks for an event, defaulting to the only one.
func (a *app) chooseEvent(ctx context.Context) (*models.Event, error) {
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	switch len(events) {
	case 0:
		return nil, errors.New("no events yet, add one first")
	case 1:
		return &events[0], nil
	}

	fmt.Println()
	for _, e := range events {
		fmt.Printf("  %d. %s (%s)\n", e.ID, e.Name, e.Date)
	}
	id, err := a.promptInt("Event id: ", 0)
	if err != nil {
		return nil, err
	}
	return a.store.GetEvent(ctx, int64(id))
}

func (a *app) addEvent(ctx context.Context) error {
	var e models.Event
	e.Name, _ = a.prompt("Name: ")
	e.Date, _ = a.prompt("Date (DD/MM/YYYY): ")
	e.Time, _ = a.prompt("Time (HH:MM): ")
	e.Place, _ = a.prompt("Place: ")
	e.Organizer, _ = a.prompt("Organizer: ")
	if e.Name == "" {
		return errors.New("event name is required")
	}

	id, err := a.store.AddEvent(ctx, e)
	if err != nil {
		return err
	}
	fmt.Printf("Event %d created.\n", id)
	return nil
}

func (a *app) addGuest(ctx context.Context) error {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}

	g := models.Guest{EventID: event.ID}
	g.FirstName, _ = a.prompt("First name: ")
	g.LastName, _ = a.prompt("Last name: ")
	g.Email, _ = a.prompt("Email: ")
	g.PhoneNumber, _ = a.prompt("Phone number: ")
	g.Category, _ = a.prompt("Category [Standard]: ")
	g.TableName, _ = a.prompt("Table: ")
	if g.AccompanyingGuests, err = a.promptInt("Accompanying guests [0]: ", 0); err != nil {
		return err
	}
	if g.FirstName == "" && g.LastName == "" {
		return errors.New("guest name is required")
	}

	id, err := a.store.AddGuest(ctx, g)
	if err != nil {
		return err
	}
	fmt.Printf("Guest %d added.\n", id)
	return nil
}

func (a *app) listGuests(ctx context.Context) error {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}
	guests, err := a.store.ListGuests(ctx, event.ID)
	if err != nil {
		return err
	}
	if len(guests) == 0 {
		fmt.Println("\nNo guests found.")
		return nil
	}

	fmt.Printf("\nGuests of %s (%d total):\n", event.Name, len(guests))
	fmt.Println(strings.Repeat("-", 60))
	for _, g := range guests {
		fmt.Printf("%-4d %-30s %-10s %s\n", g.ID, g.FullName(), g.Category, g.Status)
		if g.QRCode != "" {
			fmt.Printf("     code: %s\n", g.QRCode)
		}
		if !g.ScannedAt.IsZero() {
			fmt.Printf("     checked in: %s\n", g.ScannedAt.Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Println(strings.Repeat("-", 60))
	return nil
}

func (a *app) generate(ctx context.Context) error {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}
	report, err := a.generator.Generate(ctx, event.ID)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		g := report.Guests[r.GuestID]
		if r.Err != nil {
			fmt.Printf("  FAIL %s: %v\n", g.FullName(), r.Err)
			continue
		}
		fmt.Printf("  OK   %s -> %s\n", g.FullName(), r.Result.InvitationPath)
	}
	fmt.Printf("\n%d generated, %d failed.\n", report.Succeeded, report.Failed)
	return nil
}

func (a *app) scanFile(ctx context.Context) error {
	path, _ := a.prompt("Image path: ")
	res, err := a.scanner.ScanFile(ctx, path)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func (a *app) scanFolder(ctx context.Context) error {
	dir, _ := a.prompt("Frames folder: ")
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Println("Scanning, press Ctrl-C to stop.")
	return a.scanner.Run(ctx, checkin.FollowDir(dir, followInterval, a.log), func(_ string, res checkin.Result) {
		printResult(res)
	})
}

func printResult(res checkin.Result) {
	switch res.Outcome {
	case checkin.Success:
		fmt.Printf("[OK] %s (party of %d)\n", res.Message, res.PartySize)
		if res.Guest != nil && res.Guest.TableName != "" {
			fmt.Printf("     Table: %s\n", res.Guest.TableName)
		}
	case checkin.AlreadyCheckedIn:
		fmt.Printf("[!!] %s at %s\n", res.Message, res.ScannedAt.Format("15:04:05"))
	default:
		fmt.Printf("[--] %s\n", res.Message)
	}
}

func (a *app) statistics(ctx context.Context) error {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}
	stats, err := a.store.Statistics(ctx, event.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n", event.Name)
	fmt.Printf("  Guests:  %d (%d people)\n", stats.TotalGuests, stats.TotalPeople)
	fmt.Printf("  Present: %d (%d people), %.2f%%\n", stats.Present, stats.PresentPeople, stats.AttendanceRate)
	for category, c := range stats.ByCategory {
		fmt.Printf("  %-12s %d/%d\n", category, c.Present, c.Guests)
	}
	return nil
}

func (a *app) sendInvitations(ctx context.Context) error {
	if a.whatsapp == nil {
		return errors.New("WhatsApp delivery is disabled, set WHATSAPP_ENABLED=true")
	}
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}

	out, err := handler.NewDispatcher(a.whatsapp, a.store, a.log).SendAll(ctx, *event)
	if err != nil {
		return err
	}
	sent := 0
	for _, d := range out {
		if d.Err != nil {
			fmt.Printf("  FAIL %s: %v\n", d.Guest.FullName(), d.Err)
			continue
		}
		sent++
		fmt.Printf("  OK   %s\n", d.Guest.FullName())
	}
	fmt.Printf("\n%d of %d invitations sent.\n", sent, len(out))
	return nil
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Printf("Door API on %s, press Ctrl-C to stop.\n", a.cfg.HTTPAddr)
	return a.server.ListenAndServe(ctx, a.cfg.HTTPAddr)
}

func (a *app) setTemplate(ctx context.Context) error {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return err
	}
	path, _ := a.prompt("Template image: ")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(a.cfg.TemplatesDir, path)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("template not found: %w", err)
		}
	}
	if err := a.store.SetEventTemplate(ctx, event.ID, path); err != nil {
		return err
	}
	a.engine.Invalidate()
	fmt.Printf("Template of %s set to %s.\n", event.Name, path)
	return nil
}

// eventTemplate returns the template path of an event with its current size.
func (a *app) eventTemplate(ctx context.Context) (string, viewport.Size, error) {
	event, err := a.chooseEvent(ctx)
	if err != nil {
		return "", viewport.Size{}, err
	}
	if event.TemplatePath == "" {
		return "", viewport.Size{}, errors.New("event has no template")
	}
	size, err := a.engine.TemplateSize(event.TemplatePath)
	if err != nil {
		return "", viewport.Size{}, fmt.Errorf("failed to read template: %w", err)
	}
	return event.TemplatePath, size, nil
}

func (a *app) checkLayout(ctx context.Context) error {
	path, size, err := a.eventTemplate(ctx)
	if err != nil {
		return err
	}
	cfg, err := layout.Load(layout.ConfigPath(path))
	if errors.Is(err, layout.ErrNotFound) {
		fmt.Println("No layout saved, the default layout will be used.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nTemplate %dx%d, %d elements\n", size.W, size.H, len(cfg.Elements))
	if err := cfg.CheckTemplate(size); err != nil {
		fmt.Printf("  WARNING %v\n", err)
	}
	warnings := cfg.Inspect()
	for _, w := range warnings {
		fmt.Printf("  WARNING %s\n", w)
	}
	if len(warnings) == 0 {
		fmt.Println("  All elements are well placed.")
	}
	return nil
}

func (a *app) editLayout(ctx context.Context) error {
	path, size, err := a.eventTemplate(ctx)
	if err != nil {
		return err
	}
	configPath := layout.ConfigPath(path)

	cfg, err := layout.Load(configPath)
	switch {
	case errors.Is(err, layout.ErrNotFound):
		cfg = nil
	case err != nil:
		fmt.Printf("Saved layout ignored: %v\n", err)
		cfg = nil
	}

	s := layout.OpenSession(cfg, size, editorViewport)
	if err := s.Drift(); err != nil {
		fmt.Printf("WARNING %v\n", err)
	}
	fmt.Printf("Editing %s at scale %.3f\n", filepath.Base(path), s.View().Scale())
	fmt.Println("l list | f fields | a <field> | m <i> <x> <y> <w> <h> | r <i> | z <zoom> | s save | q quit")

	for {
		line, ok := a.prompt("layout> ")
		if !ok {
			return nil
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		var err error
		switch args[0] {
		case "l":
			printSession(s)
		case "f":
			for _, f := range layout.Fields() {
				fmt.Printf("  %-12s %s\n", f, f.Label())
			}
		case "a":
			err = editAdd(s, args[1:])
		case "m":
			err = editMove(s, args[1:])
		case "r":
			err = editRemove(s, args[1:])
		case "z":
			err = editZoom(s, args[1:])
		case "s":
			if err = s.Save(configPath); err == nil {
				a.engine.Invalidate()
				fmt.Printf("Saved %s\n", configPath)
				for _, w := range s.Config().Inspect() {
					fmt.Printf("  WARNING %s\n", w)
				}
			}
		case "q":
			return nil
		default:
			err = fmt.Errorf("unknown command %q", args[0])
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func printSession(s *layout.Session) {
	display := s.Display()
	for i, e := range s.Elements() {
		d := display[i].Pixels()
		fmt.Printf("  %d. %-12s native (%d,%d %dx%d)  display (%d,%d %dx%d)\n",
			i, e.Field, e.X, e.Y, e.Width, e.Height, d.X, d.Y, d.W, d.H)
	}
}

func editAdd(s *layout.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: a <field>")
	}
	f, err := layout.ParseField(args[0])
	if err != nil {
		return err
	}
	i, err := s.Add(f)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s as element %d\n", f, i)
	return nil
}

func editMove(s *layout.Session, args []string) error {
	if len(args) != 5 {
		return errors.New("usage: m <i> <x> <y> <w> <h>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	var v [4]float64
	for k := range v {
		if v[k], err = strconv.ParseFloat(args[k+1], 64); err != nil {
			return err
		}
	}
	return s.Move(i, viewport.DisplayRect{X: v[0], Y: v[1], W: v[2], H: v[3]})
}

func editRemove(s *layout.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: r <i>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return s.Remove(i)
}

func editZoom(s *layout.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: z <zoom>")
	}
	z, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	if z <= 0 {
		return errors.New("zoom must be positive")
	}
	s.Zoom(z)
	fmt.Printf("Scale %.3f\n", s.View().Scale())
	return nil
}
