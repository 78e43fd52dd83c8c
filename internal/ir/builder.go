package ir

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Builder methods on Pool are the only way to create nodes. Each validates
// arity and operand kind, then interns. No implicit numeric coercion is
// performed; kinds are unified later by interval analysis.

// Must returns s or panics on err.
// Use only in tests or when inputs are known to be valid.
func Must(s Signal, err error) Signal {
	if err != nil {
		panic(err)
	}
	return s
}

// normalizeLabel NFC-normalizes user text so visually identical labels share identity.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Int returns the integer literal v.
func (p *Pool) Int(v int64) (Signal, error) {
	return p.intern(TagInt, payload{Int: v})
}

// Real returns the real literal v. Reals intern by bit pattern.
func (p *Pool) Real(v float64) (Signal, error) {
	return p.intern(TagReal, payload{RealBits: math.Float64bits(v)})
}

// Literal returns an int or real literal for c.
func (p *Pool) Literal(c Const) (Signal, error) {
	if c.Kind == KindInt {
		return p.Int(c.Int)
	}
	return p.Real(c.Real)
}

// Input returns the audio input with the given index.
func (p *Pool) Input(idx int) (Signal, error) {
	if idx < 0 {
		return Signal{}, constructionError("input: negative index %d", idx)
	}
	return p.intern(TagInput, payload{Int: int64(idx)})
}

// BinOp applies a binary operator. Operand order is preserved as given;
// commutative operators are not canonicalized.
func (p *Pool) BinOp(op Op, x, y Signal) (Signal, error) {
	if !op.IsValid() {
		return Signal{}, constructionError("binop: invalid operator %d", uint8(op))
	}
	return p.intern(TagBinOp, payload{Op: op}, x, y)
}

func (p *Pool) Add(x, y Signal) (Signal, error) { return p.BinOp(OpAdd, x, y) }
func (p *Pool) Sub(x, y Signal) (Signal, error) { return p.BinOp(OpSub, x, y) }
func (p *Pool) Mul(x, y Signal) (Signal, error) { return p.BinOp(OpMul, x, y) }
func (p *Pool) Div(x, y Signal) (Signal, error) { return p.BinOp(OpDiv, x, y) }
func (p *Pool) Rem(x, y Signal) (Signal, error) { return p.BinOp(OpRem, x, y) }

func (p *Pool) Lsh(x, y Signal) (Signal, error)  { return p.BinOp(OpLsh, x, y) }
func (p *Pool) ARsh(x, y Signal) (Signal, error) { return p.BinOp(OpARsh, x, y) }
func (p *Pool) LRsh(x, y Signal) (Signal, error) { return p.BinOp(OpLRsh, x, y) }

func (p *Pool) GT(x, y Signal) (Signal, error) { return p.BinOp(OpGT, x, y) }
func (p *Pool) LT(x, y Signal) (Signal, error) { return p.BinOp(OpLT, x, y) }
func (p *Pool) GE(x, y Signal) (Signal, error) { return p.BinOp(OpGE, x, y) }
func (p *Pool) LE(x, y Signal) (Signal, error) { return p.BinOp(OpLE, x, y) }
func (p *Pool) EQ(x, y Signal) (Signal, error) { return p.BinOp(OpEQ, x, y) }
func (p *Pool) NE(x, y Signal) (Signal, error) { return p.BinOp(OpNE, x, y) }

func (p *Pool) And(x, y Signal) (Signal, error) { return p.BinOp(OpAnd, x, y) }
func (p *Pool) Or(x, y Signal) (Signal, error)  { return p.BinOp(OpOr, x, y) }
func (p *Pool) Xor(x, y Signal) (Signal, error) { return p.BinOp(OpXor, x, y) }

// Prim applies a registered math primitive (0–5 operands).
func (p *Pool) Prim(name string, args ...Signal) (Signal, error) {
	prim, ok := LookupPrimitive(name)
	if !ok {
		return Signal{}, constructionError("prim: unknown primitive %q", name)
	}
	if len(args) != prim.Arity {
		return Signal{}, constructionError("prim %s: got %d operands, want %d", name, len(args), prim.Arity)
	}
	return p.intern(TagPrim, payload{Text: name}, args...)
}

// IntCast converts x to an integer.
func (p *Pool) IntCast(x Signal) (Signal, error) { return p.intern(TagIntCast, payload{}, x) }

// FloatCast converts x to a real.
func (p *Pool) FloatCast(x Signal) (Signal, error) { return p.intern(TagFloatCast, payload{}, x) }

// Delay delays x by d samples.
func (p *Pool) Delay(x, d Signal) (Signal, error) { return p.intern(TagDelay, payload{}, x, d) }

// Delay1 delays x by one sample.
func (p *Pool) Delay1(x Signal) (Signal, error) { return p.intern(TagDelay1, payload{}, x) }

// ReadTable builds a read-only table of the given size, filled by init and read at ridx.
func (p *Pool) ReadTable(size, init, ridx Signal) (Signal, error) {
	return p.intern(TagRDTable, payload{}, size, init, ridx)
}

// WriteTable builds a read/write table: wsig is written at widx, the table is read at ridx.
func (p *Pool) WriteTable(size, init, widx, wsig, ridx Signal) (Signal, error) {
	return p.intern(TagWRTable, payload{}, size, init, widx, wsig, ridx)
}

// Waveform builds a constant periodic waveform from literal values.
func (p *Pool) Waveform(values ...Signal) (Signal, error) {
	if len(values) == 0 {
		return Signal{}, constructionError("waveform: at least one value required")
	}
	for i, v := range values {
		if err := p.own(v); err != nil {
			return Signal{}, err
		}
		if !p.nodes[v.id-1].isLiteral() {
			return Signal{}, constructionError("waveform: value %d is %s, want a literal", i, p.nodes[v.id-1].tag)
		}
	}
	return p.intern(TagWaveform, payload{}, values...)
}

// Soundfile returns the soundfile leaf bound to label.
func (p *Pool) Soundfile(label string) (Signal, error) {
	label = normalizeLabel(label)
	if label == "" {
		return Signal{}, constructionError("soundfile: empty label")
	}
	return p.intern(TagSoundfile, payload{Text: label})
}

func (p *Pool) requireTag(ctx string, s Signal, tag Tag) error {
	if err := p.own(s); err != nil {
		return err
	}
	if got := p.nodes[s.id-1].tag; got != tag {
		return constructionError("%s: operand is %s, want %s", ctx, got, tag)
	}
	return nil
}

// SoundfileLength returns the length of part of sf.
func (p *Pool) SoundfileLength(sf, part Signal) (Signal, error) {
	if err := p.requireTag("length", sf, TagSoundfile); err != nil {
		return Signal{}, err
	}
	return p.intern(TagSoundfileLength, payload{}, sf, part)
}

// SoundfileRate returns the sample rate of part of sf.
func (p *Pool) SoundfileRate(sf, part Signal) (Signal, error) {
	if err := p.requireTag("rate", sf, TagSoundfile); err != nil {
		return Signal{}, err
	}
	return p.intern(TagSoundfileRate, payload{}, sf, part)
}

// SoundfileBuffer reads channel chan of part of sf at ridx.
func (p *Pool) SoundfileBuffer(sf, chn, part, ridx Signal) (Signal, error) {
	if err := p.requireTag("buffer", sf, TagSoundfile); err != nil {
		return Signal{}, err
	}
	return p.intern(TagSoundfileBuffer, payload{}, sf, chn, part, ridx)
}

// Select2 yields a when sel is 0 and b otherwise.
func (p *Pool) Select2(sel, a, b Signal) (Signal, error) {
	return p.intern(TagSelect2, payload{}, sel, a, b)
}

// Select3 yields a, b or c for sel 0, 1 or 2.
func (p *Pool) Select3(sel, a, b, c Signal) (Signal, error) {
	return p.intern(TagSelect3, payload{}, sel, a, b, c)
}

func (p *Pool) foreign(tag Tag, kind Kind, name, file string) (Signal, error) {
	if kind != KindInt && kind != KindReal {
		return Signal{}, constructionError("%s: kind must be int or real", tag)
	}
	name = normalizeLabel(name)
	if name == "" {
		return Signal{}, constructionError("%s: empty symbol name", tag)
	}
	return p.intern(tag, payload{Kind: kind, Text: name, File: normalizeLabel(file)})
}

// FConst binds an external constant symbol declared in file.
func (p *Pool) FConst(kind Kind, name, file string) (Signal, error) {
	return p.foreign(TagFConst, kind, name, file)
}

// FVar binds an external variable symbol declared in file.
func (p *Pool) FVar(kind Kind, name, file string) (Signal, error) {
	return p.foreign(TagFVar, kind, name, file)
}

// OpenGroup opens recursion group id and returns its placeholder.
// The placeholder denotes the group's own output delayed by one sample.
func (p *Pool) OpenGroup(id int) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	if id < 0 {
		return Signal{}, constructionError("open group: negative id %d", id)
	}
	if _, ok := p.groups[id]; ok {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "group already opened", Group: id, HasGroup: true}
	}
	g, err := p.reserveGroup(id)
	if err != nil {
		return Signal{}, err
	}
	self, err := p.intern(TagSelf, payload{Group: id})
	if err != nil {
		delete(p.groups, id)
		return Signal{}, err
	}
	g.self = self.id
	p.logger.Debug("recursion group opened", "group", id)
	return self, nil
}

// SelfRef returns the placeholder of an opened group.
func (p *Pool) SelfRef(id int) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	g, ok := p.groups[id]
	if !ok || g.reserved {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "group not opened", Group: id, HasGroup: true}
	}
	return Signal{pool: p, id: g.self}, nil
}

// CloseGroup closes group id with its defining subtree and returns the tie.
// Each group is closed exactly once.
func (p *Pool) CloseGroup(id int, body Signal) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	g, ok := p.groups[id]
	if !ok || g.reserved {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "closing a group that was never opened", Group: id, HasGroup: true}
	}
	if g.tie.IsValid() {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "group already closed", Group: id, HasGroup: true}
	}
	tie, err := p.intern(TagRec, payload{Group: id}, body)
	if err != nil {
		return Signal{}, err
	}
	g.tie = tie.id
	p.logger.Debug("recursion group closed", "group", id, "tie", tie.id)
	return tie, nil
}

// ResolvedRef returns the resolved feedback reference for group id.
// Only recursion resolution and normalization create these.
func (p *Pool) ResolvedRef(id int) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	if _, ok := p.groups[id]; !ok {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "unknown group", Group: id, HasGroup: true}
	}
	return p.intern(TagProj, payload{Group: id})
}

// ResolvedTie interns a tie for group id without touching the CloseGroup registry.
func (p *Pool) ResolvedTie(id int, body Signal) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	if _, ok := p.groups[id]; !ok {
		return Signal{}, &Error{Code: ErrCodeConstruction, Message: "unknown group", Group: id, HasGroup: true}
	}
	return p.intern(TagRec, payload{Group: id}, body)
}

func (p *Pool) label(tag Tag, label string) (string, error) {
	label = normalizeLabel(label)
	if label == "" {
		return "", constructionError("%s: empty label", tag)
	}
	return label, nil
}

// Button returns a momentary button control, 1 while pressed.
func (p *Pool) Button(label string) (Signal, error) {
	l, err := p.label(TagButton, label)
	if err != nil {
		return Signal{}, err
	}
	return p.intern(TagButton, payload{Text: l})
}

// Checkbox returns a toggle control.
func (p *Pool) Checkbox(label string) (Signal, error) {
	l, err := p.label(TagCheckbox, label)
	if err != nil {
		return Signal{}, err
	}
	return p.intern(TagCheckbox, payload{Text: l})
}

func (p *Pool) literalValue(ctx string, s Signal) (float64, error) {
	if err := p.own(s); err != nil {
		return 0, err
	}
	n := &p.nodes[s.id-1]
	if !n.isLiteral() {
		return 0, constructionError("%s: operand is %s, want a literal", ctx, n.tag)
	}
	return n.literal().Float(), nil
}

func (p *Pool) slider(tag Tag, label string, init, lo, hi, step Signal) (Signal, error) {
	l, err := p.label(tag, label)
	if err != nil {
		return Signal{}, err
	}
	var vals [4]float64
	for i, s := range []Signal{init, lo, hi, step} {
		if vals[i], err = p.literalValue(tag.String(), s); err != nil {
			return Signal{}, err
		}
	}
	if vals[1] > vals[2] {
		return Signal{}, constructionError("%s %q: min %s > max %s", tag, l, FormatFloat(vals[1]), FormatFloat(vals[2]))
	}
	if vals[3] < 0 {
		return Signal{}, constructionError("%s %q: negative step", tag, l)
	}
	return p.intern(tag, payload{Text: l}, init, lo, hi, step)
}

// VSlider returns a vertical slider control.
func (p *Pool) VSlider(label string, init, lo, hi, step Signal) (Signal, error) {
	return p.slider(TagVSlider, label, init, lo, hi, step)
}

// HSlider returns a horizontal slider control.
func (p *Pool) HSlider(label string, init, lo, hi, step Signal) (Signal, error) {
	return p.slider(TagHSlider, label, init, lo, hi, step)
}

// NumEntry returns a numeric entry control.
func (p *Pool) NumEntry(label string, init, lo, hi, step Signal) (Signal, error) {
	return p.slider(TagNumEntry, label, init, lo, hi, step)
}

func (p *Pool) bargraph(tag Tag, label string, lo, hi, x Signal) (Signal, error) {
	l, err := p.label(tag, label)
	if err != nil {
		return Signal{}, err
	}
	lv, err := p.literalValue(tag.String(), lo)
	if err != nil {
		return Signal{}, err
	}
	hv, err := p.literalValue(tag.String(), hi)
	if err != nil {
		return Signal{}, err
	}
	if lv > hv {
		return Signal{}, constructionError("%s %q: min > max", tag, l)
	}
	return p.intern(tag, payload{Text: l}, lo, hi, x)
}

// VBargraph displays x on a vertical bargraph and passes it through.
func (p *Pool) VBargraph(label string, lo, hi, x Signal) (Signal, error) {
	return p.bargraph(TagVBargraph, label, lo, hi, x)
}

// HBargraph displays x on a horizontal bargraph and passes it through.
func (p *Pool) HBargraph(label string, lo, hi, x Signal) (Signal, error) {
	return p.bargraph(TagHBargraph, label, lo, hi, x)
}

// Attach yields x and forces y to be computed.
func (p *Pool) Attach(x, y Signal) (Signal, error) { return p.intern(TagAttach, payload{}, x, y) }

// Enable yields x while y is non-zero, 0 otherwise, and skips computing x when disabled.
func (p *Pool) Enable(x, y Signal) (Signal, error) { return p.intern(TagEnable, payload{}, x, y) }

// Control yields x, computed only while y is non-zero (held otherwise).
func (p *Pool) Control(x, y Signal) (Signal, error) { return p.intern(TagControl, payload{}, x, y) }

// AssertBounds declares that x stays within [lo, hi].
func (p *Pool) AssertBounds(lo, hi, x Signal) (Signal, error) {
	return p.intern(TagAssertBounds, payload{}, lo, hi, x)
}

// Lowest is the statically known lower bound of x.
func (p *Pool) Lowest(x Signal) (Signal, error) { return p.intern(TagLowest, payload{}, x) }

// Highest is the statically known upper bound of x.
func (p *Pool) Highest(x Signal) (Signal, error) { return p.intern(TagHighest, payload{}, x) }
