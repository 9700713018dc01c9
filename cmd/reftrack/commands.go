package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/scrypster/reftrack/internal/config"
	"github.com/scrypster/reftrack/internal/notify"
	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/pkg/types"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"list":          listCmd,
	"create":        createCmd,
	"status":        statusCmd,
	"info":          infoCmd,
	"perform":       performCmd,
	"restricted":    restrictedCmd,
	"remove":        removeCmd,
	"suggestions":   suggestionsCmd,
	"options":       optionsCmd,
	"save":          saveCmd,
	"mark":          markCmd,
	"registry-sync": registrySyncCmd,
	"watch":         watchCmd,
}

// subcommand parses flags of one command. Parse errors become usage errors.
func subcommand(name string, args []string, define func(fs *flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, usagef("%v", err)
	}
	return fs, nil
}

func positional(fs *flag.FlagSet, names ...string) ([]string, error) {
	if fs.NArg() != len(names) {
		return nil, usagef("expected arguments %v, got %d", names, fs.NArg())
	}
	return fs.Args(), nil
}

// print writes v as JSON, or calls text when JSON output is off.
func (a *app) print(v any, text func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.stdout)
	return nil
}

func listCmd(ctx context.Context, a *app, args []string) error {
	if _, err := subcommand("list", args, nil); err != nil {
		return err
	}
	ids, err := a.ctrl.ListEntities(ctx)
	if err != nil {
		return err
	}
	infos := make([]types.EntityInfo, 0, len(ids))
	for _, id := range ids {
		info, err := a.ctrl.Info(ctx, id)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	return a.print(infos, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tIDENTIFIER\tSTATUS\tNAMESPACE\tPARENT")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				info.ID, info.Type, info.Identifier, info.Status, info.Namespace, info.Parent)
		}
		_ = tw.Flush()
	})
}

func createCmd(ctx context.Context, a *app, args []string) error {
	var (
		typeTag    string
		parent     string
		identifier int
	)
	fs, err := subcommand("create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&typeTag, "type", "", "Type tag of the entity (required)")
		fs.StringVar(&parent, "parent", "", "Parent entity")
		fs.IntVar(&identifier, "id", -1, "Identifier among siblings (next free when negative)")
	})
	if err != nil {
		return err
	}
	if _, err := positional(fs); err != nil {
		return err
	}
	if typeTag == "" {
		return usagef("-type is required")
	}

	id, err := a.ctrl.CreateEntity(ctx, typeTag, parent, identifier)
	if err != nil {
		return err
	}
	return a.print(map[string]string{"id": id}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}

func statusCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("status", args, nil)
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity")
	if err != nil {
		return err
	}
	status, err := a.ctrl.Status(ctx, pos[0])
	if err != nil {
		return err
	}
	return a.print(map[string]types.Status{"status": status}, func(w io.Writer) {
		fmt.Fprintln(w, status)
	})
}

func infoCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("info", args, nil)
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity")
	if err != nil {
		return err
	}
	info, err := a.ctrl.Info(ctx, pos[0])
	if err != nil {
		return err
	}
	return a.print(info, func(w io.Writer) {
		fmt.Fprintf(w, "id:         %s\n", info.ID)
		fmt.Fprintf(w, "type:       %s\n", info.Type)
		fmt.Fprintf(w, "identifier: %d\n", info.Identifier)
		fmt.Fprintf(w, "status:     %s\n", info.Status)
		fmt.Fprintf(w, "namespace:  %s\n", info.Namespace)
		fmt.Fprintf(w, "parent:     %s\n", info.Parent)
		fmt.Fprintf(w, "children:   %v\n", info.Children)
		fmt.Fprintf(w, "reference:  %s\n", info.Reference)
		if info.NestedIn != "" {
			fmt.Fprintf(w, "nested in:  %s\n", info.NestedIn)
		}
		if info.FileID != 0 {
			fmt.Fprintf(w, "file:       %d\n", info.FileID)
		}
	})
}

func performCmd(ctx context.Context, a *app, args []string) error {
	var fileID int
	fs, err := subcommand("perform", args, func(fs *flag.FlagSet) {
		fs.IntVar(&fileID, "file", 0, "File ID of the content item for reference, import_content and replace")
	})
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity", "action")
	if err != nil {
		return err
	}

	var item *types.ContentItem
	if fileID != 0 {
		it, err := a.files.Item(ctx, fileID)
		if err != nil {
			return err
		}
		item = &it
	}

	result, err := a.ctrl.Perform(ctx, pos[0], types.Action(pos[1]), item)
	if err != nil {
		return err
	}
	return a.print(result, func(w io.Writer) {
		if result.Restricted {
			fmt.Fprintf(w, "%s is restricted (status %s)\n", result.Action, result.Status)
			return
		}
		fmt.Fprintf(w, "%s: %s\n", result.Action, result.Status)
	})
}

func restrictedCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("restricted", args, nil)
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity", "action")
	if err != nil {
		return err
	}
	restricted, err := a.ctrl.IsRestricted(ctx, pos[0], types.Action(pos[1]))
	if err != nil {
		return err
	}
	return a.print(map[string]bool{"restricted": restricted}, func(w io.Writer) {
		fmt.Fprintln(w, strconv.FormatBool(restricted))
	})
}

func removeCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("remove", args, nil)
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity")
	if err != nil {
		return err
	}
	result, err := a.ctrl.Remove(ctx, pos[0])
	if err != nil {
		return err
	}
	return a.print(result, func(w io.Writer) {
		if result.Restricted {
			fmt.Fprintln(w, "remove is restricted")
			return
		}
		fmt.Fprintln(w, "removed")
	})
}

func suggestionsCmd(ctx context.Context, a *app, args []string) error {
	var entity string
	fs, err := subcommand("suggestions", args, func(fs *flag.FlagSet) {
		fs.StringVar(&entity, "entity", "", "Suggest children of this entity instead of the document")
	})
	if err != nil {
		return err
	}
	if _, err := positional(fs); err != nil {
		return err
	}

	var suggestions []types.Suggestion
	if entity != "" {
		suggestions, err = a.ctrl.ChildSuggestions(ctx, entity)
	} else {
		suggestions, err = a.ctrl.SceneSuggestions(ctx)
	}
	if err != nil {
		return err
	}
	return a.print(suggestions, func(w io.Writer) {
		for _, s := range suggestions {
			fmt.Fprintf(w, "%s\t%s %s (%d)\n", s.Type, s.Element.Kind, s.Element.Name, s.Element.ID)
		}
	})
}

func optionsCmd(ctx context.Context, a *app, args []string) error {
	var elementID int
	fs, err := subcommand("options", args, func(fs *flag.FlagSet) {
		fs.IntVar(&elementID, "element", 0, "Element to list content items for (required)")
	})
	if err != nil {
		return err
	}
	pos, err := positional(fs, "entity")
	if err != nil {
		return err
	}
	if elementID == 0 {
		return usagef("-element is required")
	}

	element, err := a.files.Element(ctx, elementID)
	if err != nil {
		return err
	}
	items, err := a.ctrl.Options(ctx, pos[0], element)
	if err != nil {
		return err
	}

	type option struct {
		FileID int               `json:"file_id"`
		Item   types.ContentItem `json:"item"`
	}
	out := make([]option, 0, len(items))
	for _, item := range items {
		id, err := a.files.FileID(ctx, item)
		if err != nil {
			return err
		}
		out = append(out, option{FileID: id, Item: item})
	}
	return a.print(out, func(w io.Writer) {
		for _, o := range out {
			fmt.Fprintf(w, "%d\t%s\n", o.FileID, o.Item)
		}
	})
}

func saveCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("save", args, nil)
	if err != nil {
		return err
	}
	pos, err := positional(fs, "path")
	if err != nil {
		return err
	}
	if err := a.doc.Save(ctx, pos[0]); err != nil {
		return err
	}
	a.log.Info().Str("path", pos[0]).Msg("document saved")
	return nil
}

func markCmd(ctx context.Context, a *app, args []string) error {
	var fileID int
	fs, err := subcommand("mark", args, func(fs *flag.FlagSet) {
		fs.IntVar(&fileID, "file", 0, "File ID the document represents (required)")
	})
	if err != nil {
		return err
	}
	if _, err := positional(fs); err != nil {
		return err
	}
	if fileID == 0 {
		return usagef("-file is required")
	}
	if _, err := a.files.Item(ctx, fileID); err != nil {
		return err
	}

	marker, err := a.ctrl.Repository().CreateSceneMarker(ctx, fileID)
	if err != nil {
		return err
	}
	return a.print(map[string]string{"marker": marker}, func(w io.Writer) {
		fmt.Fprintln(w, marker)
	})
}

func registrySyncCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("registry-sync", args, nil)
	if err != nil {
		return err
	}
	if _, err := positional(fs); err != nil {
		return err
	}
	if a.pg == nil {
		return errors.New("registry-sync requires the " + config.RegistryPostgres + " registry backend")
	}

	m, err := registry.LoadManifest(a.cfg.Registry.Manifest)
	if err != nil {
		return err
	}
	if err := a.pg.Sync(ctx, m); err != nil {
		return err
	}
	a.log.Info().Int("elements", len(m.Elements())).Int("files", len(m.Files())).Msg("registry synced")
	return nil
}

// watchCmd prints the change events of the event directory, one JSON object
// per line, until the context is cancelled.
func watchCmd(ctx context.Context, a *app, args []string) error {
	fs, err := subcommand("watch", args, nil)
	if err != nil {
		return err
	}
	if _, err := positional(fs); err != nil {
		return err
	}
	if a.cfg.Events.Path == "" {
		return errors.New("watch requires REFTRACK_EVENTS_PATH")
	}

	var mu sync.Mutex
	enc := json.NewEncoder(a.stdout)
	watcher := notify.NewEventWatcher(a.cfg.Events.Path, func(evt notify.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(evt); err != nil {
			a.log.Warn().Err(err).Msg("failed to print event")
		}
	}, a.log.Logger)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}
