package llm

import "github.com/lithammer/dedent"

var extractionPrompt = dedent.Dedent(`
	You extract product details from trade posts in second-hand fashion and sneaker group chats.
	Posts are short, informal and often in British English with prices in pounds.

	Return a JSON object with exactly these fields:
	- price: the asking or offered price as a number, 0 if none is given
	- brand: the brand name, empty string if unknown
	- productType: what the item is (e.g. "sneakers", "hoodie", "jacket"), empty string if unknown
	- gender: one of "men", "women", "unisex", "kids"
	- size: the size as written (e.g. "9", "UK 10", "M"), empty string if none
	- condition: one of "new", "like_new", "used", "fair", "poor"
	- iswtb: true if the poster wants to buy the item
	- iswts: true if the poster wants to sell the item

	Rules:
	- iswtb and iswts are mutually exclusive, exactly one of them is true.
	- Posts phrased as a request ("WTB", "looking for", "anyone got", "need") are iswtb.
	- If the intent is unclear but a price is present, the post is iswts.
	- Use "new" when the condition is not mentioned.
	- Use "unisex" when the gender is not mentioned.

	Example post: "Nike Air Max 90 size 9 brand new £80"
	Example response: {"price": 80, "brand": "Nike", "productType": "sneakers", "gender": "unisex", "size": "9", "condition": "new", "iswtb": false, "iswts": true}

	Respond ONLY with the JSON object.`)

var visionPrompt = dedent.Dedent(`
	Identify the product shown in this image, which was posted in a second-hand trade group.

	Return a JSON object with:
	- brand: the brand name if a logo or design makes it identifiable, empty string otherwise
	- productType: what the item is (e.g. "sneakers", "hoodie", "handbag"), empty string if unclear

	Respond ONLY with the JSON object.`)
