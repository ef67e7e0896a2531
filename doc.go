// Package detour redirects calls from one function to another at runtime by
// writing a jump over the start of the original function.
//
//	d, err := detour.NewFunc(time.Now, fakeNow)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//
//	d.Enable()  // time.Now jumps to fakeNow
//	d.Disable() // time.Now is back to normal
//
// A Detour can also be built from raw addresses with New, against any Memory,
// using any Encoding. The encodings provided are:
//
//   - Rel32: x86 JMP rel32 (5 bytes, ±2GiB)
//   - Abs64: x86-64 JMP [RIP+0] with the address inline (14 bytes)
//   - Branch26: arm64 B (4 bytes, ±128MiB)
//   - AbsArm64: arm64 LDR/BR through X16 (16 bytes)
//   - Relay: a near jump to a stub holding a far jump, for targets out of
//     range of the near jump
//
// Every detour reserves the bytes it patches in a process-wide registry, so
// two detours can never patch overlapping code. All enabling and disabling in
// the process is serialized by one lock.
//
// Limitations:
//   - Patching code that another thread is executing is not safe. A thread
//     part way through the first instructions of the source when the jump is
//     written may execute a torn instruction. Detour does not stop other
//     threads; make sure the source isn't running, or accept the risk.
//   - Silently fails to redefine inlined call sites. Use //go:noinline.
//   - The replacement is entered by a jump, so closures that capture
//     variables can't be used as replacements.
//   - Only the registry guards against overlapping patches. Other patching
//     libraries in the same process should call Reserve.
package detour
