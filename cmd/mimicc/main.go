// Command mimicc is the CLI front end for the self-hosted compiler,
// linker, and simulated loader: mimicc compile turns a .c file into a
// .mob object, mimicc link merges .mob objects into a runnable .mimi
// image, mimicc run loads and executes a .mimi image against a
// simulated kernel, and mimicc ps/kill inspect and terminate tasks
// within that same simulated kernel for a single CLI invocation.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/mimicc/internal/codegen"
	"github.com/xyproto/mimicc/internal/config"
	"github.com/xyproto/mimicc/internal/fsys"
	"github.com/xyproto/mimicc/internal/kernel"
	"github.com/xyproto/mimicc/internal/lexer"
	"github.com/xyproto/mimicc/internal/linker"
	"github.com/xyproto/mimicc/internal/loader"
	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/mimilog"
	"github.com/xyproto/mimicc/internal/object"
	"github.com/xyproto/mimicc/internal/parser"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mimicc:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "compile":
		return cmdCompile(args[1:])
	case "link":
		return cmdLink(args[1:])
	case "run":
		return cmdRun(args[1:])
	case "ps":
		return cmdPs(args[1:])
	case "kill":
		return cmdKill(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (try \"mimicc help\")", args[0])
	}
}

func printUsage() {
	fmt.Println(`usage: mimicc <subcommand> [flags] [args]

subcommands:
  compile <file.c> -o <file.mob>     compile a translation unit to an object
  link <file.mob>... -o <file.mimi>  link objects into a MIMI image
  run <file.mimi>                    load and execute a MIMI image
  ps                                 list tasks in a fresh kernel
  kill <task-id>                     terminate a task in a fresh kernel

flags:
  -dump-symbols   print the merged symbol table after link
  -dump-relocs    print the relocation table after link`)
}

// parseFlags pulls -o <path> and any boolean switches named in bools out
// of args, returning the remaining positional arguments.
func parseFlags(args []string, bools map[string]*bool) (positional []string, output string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-o" && i+1 < len(args) {
			output = args[i+1]
			i++
			continue
		}
		if b, ok := bools[a]; ok {
			*b = true
			continue
		}
		positional = append(positional, a)
	}
	return positional, output
}

func cmdCompile(args []string) error {
	positional, output := parseFlags(args, nil)
	if len(positional) != 1 {
		return fmt.Errorf("usage: mimicc compile <file.c> -o <file.mob>")
	}
	src, err := os.ReadFile(positional[0])
	if err != nil {
		mimilog.Default().Error(mimilog.CC, err)
		return err
	}

	lx := lexer.NewFromBytes(src)
	p := parser.New(lx)
	tu := p.Parse()
	if err := p.Err(); err != nil {
		mimilog.Default().Error(mimilog.CC, err)
		return err
	}

	blob, err := codegen.Compile(p.Arena(), p.Strs(), tu)
	if err != nil {
		mimilog.Default().Error(mimilog.CC, err)
		return err
	}

	if output == "" {
		output = strings.TrimSuffix(positional[0], ".c") + ".mob"
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()
	return blob.Write(out)
}

func cmdLink(args []string) error {
	var dumpSyms, dumpRelocs bool
	positional, output := parseFlags(args, map[string]*bool{
		"-dump-symbols": &dumpSyms,
		"-dump-relocs":  &dumpRelocs,
	})
	if len(positional) == 0 {
		return fmt.Errorf("usage: mimicc link <file.mob>... -o <file.mimi>")
	}

	var blobs []*object.Blob
	for _, path := range positional {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		b, err := object.Read(f)
		f.Close()
		if err != nil {
			mimilog.Default().Error(mimilog.LINK, err)
			return err
		}
		blobs = append(blobs, b)
	}

	cfg := config.Default()
	img, err := linker.Link(linker.Options{
		Arch:         mimi.Arch(cfg.TargetArch),
		StackRequest: cfg.DefaultStack,
		HeapRequest:  cfg.DefaultHeap,
		Name:         output,
	}, blobs)
	if err != nil {
		mimilog.Default().Error(mimilog.LINK, err)
		return err
	}

	if dumpSyms {
		for _, s := range img.Syms {
			fmt.Printf("%-16s value=%#x section=%d type=%d\n", mimi.SymbolName(s), s.Value, s.Section, s.Type)
		}
	}
	if dumpRelocs {
		for _, r := range img.Relocs {
			fmt.Printf("offset=%#x section=%d type=%d sym=%d\n", r.Offset, r.Section, r.Type, r.SymbolIdx)
		}
	}

	if output == "" {
		output = "a.mimi"
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()
	return mimi.Write(out, img)
}

func cmdRun(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mimicc run <file.mimi>")
	}
	cfg := config.Load()
	ctx := kernel.New(cfg, fsys.OSFS{})

	taskID, err := ctx.Tasks.Alloc(args[0], 128)
	if err != nil {
		mimilog.Default().Error(mimilog.LOAD, err)
		return err
	}
	if err := loader.Load(ctx, args[0], taskID); err != nil {
		ctx.Tasks.Release(taskID)
		mimilog.Default().Error(mimilog.LOAD, err)
		return err
	}

	tc, _ := ctx.Tasks.Get(taskID)
	fmt.Printf("loaded task %d: entry=%#x sp=%#x\n", tc.ID, tc.Entry, tc.Saved.SP)
	return nil
}

func cmdPs(_ []string) error {
	cfg := config.Default()
	ctx := kernel.New(cfg, fsys.NewMemFS())
	for id := uint16(0); id < uint16(ctx.Tasks.Cap()); id++ {
		tc, err := ctx.Tasks.Get(id)
		if err != nil {
			continue
		}
		fmt.Printf("%d\tstate=%d\tpriority=%d\n", tc.ID, tc.State, tc.Priority)
	}
	return nil
}

func cmdKill(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mimicc kill <task-id>")
	}
	var id uint16
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}
	cfg := config.Default()
	ctx := kernel.New(cfg, fsys.NewMemFS())
	if err := ctx.Tasks.Kill(id); err != nil {
		mimilog.Default().Error(mimilog.CC, err)
		return err
	}
	return nil
}
