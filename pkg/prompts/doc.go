/*
Package prompts loads and resolves the per-language translation prompts.

Prompts live in a YAML file mapping language display names to prompt text:

	Vietnamese: |
	  Bạn là chuyên gia dịch văn bản từ hình ảnh...
	Japanese: |
	  あなたはゲーム翻訳の専門家で...

Loading is forgiving: a missing or unparsable file falls back to built-in
English and Vietnamese prompts, and unknown language keys are skipped with
a warning rather than failing startup. Lookup for a language without a
configured prompt returns the English prompt, so a request in any supported
language always has something to send to the provider.

Hot reload is not supported; prompts are read once at startup.
*/
package prompts
