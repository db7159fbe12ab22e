package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balta2ar/rdiff"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "rdiff",
})

var optionFlags = []cli.Flag{
	cli.UintFlag{
		Name:   "block-size, b",
		Usage:  "bytes per signature block",
		Value:  rdiff.DefaultBlockLen,
		EnvVar: "RDIFF_BLOCK_SIZE",
	},
	cli.UintFlag{
		Name:   "sum-size, S",
		Usage:  "strong sum bytes kept per block (0-32)",
		Value:  rdiff.MaxStrongSumLength,
		EnvVar: "RDIFF_SUM_SIZE",
	},
}

// defaultMaxVerifyBlockLen bounds the block buffer verify allocates from
// a signature header it has not produced itself.
const defaultMaxVerifyBlockLen = 64 << 20

func uint32Flag(c *cli.Context, name string) (uint32, error) {
	v := c.Uint(name)
	if uint64(v) > math.MaxUint32 {
		return 0, errors.Errorf("--%v %d does not fit in 32 bits", name, v)
	}
	return uint32(v), nil
}

// optionsFromContext builds and validates signature options from flags.
// Errors are exit errors with status 2.
func optionsFromContext(c *cli.Context) (rdiff.SignatureOptions, error) {
	blockLen, err := uint32Flag(c, "block-size")
	if err != nil {
		return rdiff.SignatureOptions{}, cli.NewExitError(err.Error(), 2)
	}
	strongLen, err := uint32Flag(c, "sum-size")
	if err != nil {
		return rdiff.SignatureOptions{}, cli.NewExitError(err.Error(), 2)
	}
	options := rdiff.DefaultSignatureOptions().
		WithBlockLen(blockLen).
		WithStrongLen(strongLen)
	if err := options.Validate(); err != nil {
		return rdiff.SignatureOptions{}, cli.NewExitError(err.Error(), 2)
	}
	return options, nil
}

func generatorFromContext(c *cli.Context) (*rdiff.SignatureGenerator, error) {
	options, err := optionsFromContext(c)
	if err != nil {
		return nil, err
	}
	generator, err := rdiff.NewSignatureGenerator(options)
	if err != nil {
		return nil, cli.NewExitError(err.Error(), 2)
	}
	return generator, nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return rdiff.NopReadCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func openOutput(name string) (io.WriteCloser, error) {
	if name == "" || name == "-" {
		return rdiff.NopWriteCloser(os.Stdout), nil
	}
	return os.Create(name)
}

func signatureAction(c *cli.Context) (err error) {
	// fail on bad options before touching any file
	generator, err := generatorFromContext(c)
	if err != nil {
		return err
	}
	options := generator.Options()

	basisName, sigName := c.Args().Get(0), c.Args().Get(1)
	basis, err := openInput(basisName)
	if err != nil {
		return errors.Wrap(err, "cannot open basis")
	}
	defer basis.Close()

	sig, err := openOutput(sigName)
	if err != nil {
		return errors.Wrap(err, "cannot create signature")
	}
	defer func() {
		if cerr := sig.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "cannot close signature")
		}
	}()

	logger.Debug("generating signature",
		"basis", basisName, "block_len", options.BlockLen, "strong_len", options.StrongLen)
	if err := generator.Generate(basis, sig); err != nil {
		return errors.Wrap(err, "signature generation failed")
	}
	logger.Info("signature written", "basis", basisName, "signature", sigName)
	return nil
}

func readSignatureFile(name string) (*rdiff.Signature, error) {
	r, err := openInput(name)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open signature")
	}
	defer r.Close()
	return rdiff.ReadSignature(r)
}

func inspectAction(c *cli.Context) error {
	sig, err := readSignatureFile(c.Args().Get(0))
	if err != nil {
		return err
	}

	fmt.Printf("format:     %v (%#08x)\n", sig.Options.Magic, uint32(sig.Options.Magic))
	fmt.Printf("block len:  %d\n", sig.Options.BlockLen)
	fmt.Printf("strong len: %d\n", sig.Options.StrongLen)
	fmt.Printf("blocks:     %d\n", sig.Len())
	if c.Bool("records") {
		for i, block := range sig.Blocks {
			fmt.Printf("%8d @%-12d %08x %s\n",
				i, sig.BlockOffset(i), block.Weak, hex.EncodeToString(block.Strong))
		}
	}
	return nil
}

// verifyBasis checks basis against sig. Signatures with blocks larger than
// maxBlockLen are refused before the block buffer is allocated.
func verifyBasis(sig *rdiff.Signature, basis io.Reader, maxBlockLen uint64) ([]int, error) {
	if uint64(sig.Options.BlockLen) > maxBlockLen {
		return nil, errors.Errorf(
			"signature block length %d exceeds limit %d", sig.Options.BlockLen, maxBlockLen)
	}
	mismatches, err := sig.Verify(basis)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read basis")
	}
	return mismatches, nil
}

func verifyAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: rdiff verify BASIS SIGNATURE", 2)
	}
	sig, err := readSignatureFile(c.Args().Get(1))
	if err != nil {
		return err
	}

	basis, err := openInput(c.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "cannot open basis")
	}
	defer basis.Close()

	mismatches, err := verifyBasis(sig, basis, c.Uint64("max-block-size"))
	if err != nil {
		return err
	}
	for _, i := range mismatches {
		logger.Warn("block differs", "index", i, "offset", sig.BlockOffset(i))
	}
	if len(mismatches) > 0 {
		return cli.NewExitError(
			fmt.Sprintf("%d of %d blocks differ", len(mismatches), sig.Len()), 1)
	}
	logger.Info("basis matches signature", "blocks", sig.Len())
	return nil
}

func signDirAction(c *cli.Context) error {
	dir := c.Args().Get(0)
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		return cli.NewExitError("please specify an existing directory", 2)
	}
	generator, err := generatorFromContext(c)
	if err != nil {
		return err
	}

	signed, err := rdiff.SignAll(rdiff.NewActualFilesystem(dir), generator, c.String("suffix"))
	for _, filename := range signed {
		logger.Info("signed", "file", filename)
	}
	return err
}

func watchAction(c *cli.Context) error {
	dir := c.Args().Get(0)
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		return cli.NewExitError("please specify an existing directory", 2)
	}
	generator, err := generatorFromContext(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := rdiff.NewSignatureWatcher(
		rdiff.NewActualFilesystem(dir), dir, generator, c.String("suffix"), logger)
	return w.Watch(ctx, c.Duration("interval"))
}

var suffixFlag = cli.StringFlag{
	Name:  "suffix",
	Usage: "appended to a basis filename to name its signature",
	Value: rdiff.DefaultSignatureSuffix,
}

func main() {
	app := cli.NewApp()
	app.Name = "rdiff"
	app.Usage = "Compute rsync-style block signatures"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			EnvVar: "RDIFF_LOG_LEVEL",
		},
	}
	app.Before = func(c *cli.Context) error {
		level, err := log.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "signature",
			Usage:     "write the signature of BASIS",
			ArgsUsage: "[BASIS [SIGNATURE]]",
			Flags:     optionFlags,
			Action:    signatureAction,
		},
		{
			Name:      "inspect",
			Usage:     "print a signature header",
			ArgsUsage: "[SIGNATURE]",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "records, r", Usage: "list every block record"},
			},
			Action: inspectAction,
		},
		{
			Name:      "verify",
			Usage:     "check BASIS against SIGNATURE block by block",
			ArgsUsage: "BASIS SIGNATURE",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:   "max-block-size",
					Usage:  "refuse signatures with larger blocks",
					Value:  defaultMaxVerifyBlockLen,
					EnvVar: "RDIFF_MAX_BLOCK_SIZE",
				},
			},
			Action: verifyAction,
		},
		{
			Name:      "sign-dir",
			Usage:     "write a signature next to every file in DIR",
			ArgsUsage: "DIR",
			Flags:     append([]cli.Flag{suffixFlag}, optionFlags...),
			Action:    signDirAction,
		},
		{
			Name:      "watch",
			Usage:     "keep signatures in DIR up to date",
			ArgsUsage: "DIR",
			Flags: append([]cli.Flag{
				suffixFlag,
				cli.DurationFlag{Name: "interval", Value: time.Second},
			}, optionFlags...),
			Action: watchAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}
