// afprofile compiles JSON profile descriptions into the binary form the
// hub loads at boot, and inspects existing binaries.
//
//	afprofile build -o hub.profile profile.json
//	afprofile inspect hub.profile
package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	aflib "github.com/AferoCE/aflib-go"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "afprofile: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "afprofile: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  afprofile build [-o output] profile.json")
	fmt.Fprintln(os.Stderr, "  afprofile inspect hub.profile")
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	output := fs.StringP("output", "o", "hub.profile", "output binary profile path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("build takes exactly one profile spec file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	spec, err := aflib.LoadProfileSpec(data)
	if err != nil {
		return err
	}
	profile, err := spec.Compile()
	if err != nil {
		return err
	}
	if err := profile.WriteFile(*output); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d attributes\n", *output, profile.Len())
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the profile as a JSON spec")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("inspect takes exactly one binary profile file")
	}

	profile, err := aflib.LoadProfile(fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		out, err := json.MarshalIndent(aflib.SpecFromProfile(profile), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%d attributes\n", profile.Len())
	for _, a := range profile.Attributes() {
		fmt.Printf("  %5d  %-12s flags=0x%04x max_length=%d\n",
			a.ID, a.Type, uint16(a.Flags), a.MaxLength)
	}
	return nil
}
